package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/ayo6706/payout-ledger/internal/gateway"
	"github.com/ayo6706/payout-ledger/internal/idempotency"
	"github.com/ayo6706/payout-ledger/internal/models"
	"github.com/ayo6706/payout-ledger/internal/ratelimit"
	"go.uber.org/zap"
)

// Options tunes a LedgerService. Zero values fall back to DefaultOptions.
type Options struct {
	PayoutTTL       time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration

	// StrictStatusTransitions only allows pending -> {completed, expired, error}.
	StrictStatusTransitions bool

	// LegacyGlobalIdempotency shares idempotency keys across projects.
	LegacyGlobalIdempotency bool
	// LegacyUnknownProjectZeroBalance treats unknown projects as funded with 0.
	LegacyUnknownProjectZeroBalance bool

	SeedProjectID      string
	SeedProjectBalance int64

	CallbackHMACKey string

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		PayoutTTL:       domain.DefaultPayoutTTL,
		RateLimitMax:    domain.RateLimitMaxPayouts,
		RateLimitWindow: domain.RateLimitWindow,
	}
}

// LedgerService owns project balances, payouts, the idempotency index,
// per-recipient rate-limit windows and the callback log.
//
// Balance mutations are serialized per project; the payout index is guarded by
// its own lock so independent projects never contend on balances.
type LedgerService struct {
	gateway gateway.Gateway
	audit   *AuditService
	opts    Options
	now     func() time.Time

	mu           sync.RWMutex
	projects     map[string]*projectAccount
	payouts      map[string]*models.Payout
	byInternalID map[string]string
	order        []string

	idem      *idempotency.Store
	limiter   *ratelimit.Limiter
	callbacks *CallbackLog
}

type projectAccount struct {
	mu      sync.Mutex
	id      string
	balance int64
	funded  int64
	spent   int64

	// inFlight is the part of spent charged for payouts still settling.
	inFlight int64
}

func (p *projectAccount) snapshot() models.Project {
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.Project{ID: p.id, Balance: p.balance, Funded: p.funded, Spent: p.spent}
}

// NewLedgerService creates the engine and seeds the configured project.
func NewLedgerService(gw gateway.Gateway, sink AuditSink, opts Options) *LedgerService {
	defaults := DefaultOptions()
	if opts.PayoutTTL <= 0 {
		opts.PayoutTTL = defaults.PayoutTTL
	}
	if opts.RateLimitMax <= 0 {
		opts.RateLimitMax = defaults.RateLimitMax
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = defaults.RateLimitWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	scope := idempotency.ScopeProject
	if opts.LegacyGlobalIdempotency {
		scope = idempotency.ScopeGlobal
	}

	s := &LedgerService{
		gateway:      gw,
		audit:        NewAuditService(sink, opts.Clock),
		opts:         opts,
		now:          opts.Clock,
		projects:     make(map[string]*projectAccount),
		payouts:      make(map[string]*models.Payout),
		byInternalID: make(map[string]string),
		idem:         idempotency.NewStore(scope),
		limiter:      ratelimit.New(opts.RateLimitMax, opts.RateLimitWindow, opts.Clock),
		callbacks:    NewCallbackLog(opts.CallbackHMACKey),
	}
	s.seed(context.Background())
	return s
}

// Reset clears all ledger state, disables failure injection and reseeds the
// configured project.
func (s *LedgerService) Reset(ctx context.Context) {
	s.mu.Lock()
	s.projects = make(map[string]*projectAccount)
	s.payouts = make(map[string]*models.Payout)
	s.byInternalID = make(map[string]string)
	s.order = nil
	s.mu.Unlock()

	s.idem.Reset()
	s.limiter.Reset()
	s.callbacks.Reset()
	s.gateway.ResetFailureInjection()

	s.audit.Write(ctx, "ledger", "all", "", "reset", "", "", 0, nil)
	s.seed(ctx)
	zap.L().Info("ledger state reset", zap.String("seed_project", s.opts.SeedProjectID))
}

func (s *LedgerService) seed(ctx context.Context) {
	if s.opts.SeedProjectID == "" || s.opts.SeedProjectBalance <= 0 {
		return
	}
	if _, err := s.FundProject(ctx, s.opts.SeedProjectID, s.opts.SeedProjectBalance); err != nil {
		zap.L().Error("seed project funding failed", zap.Error(err), zap.String("project_id", s.opts.SeedProjectID))
	}
}

// Options returns the effective options.
func (s *LedgerService) Options() Options {
	return s.opts
}

// Callbacks returns the callback log.
func (s *LedgerService) Callbacks() []models.CallbackEntry {
	return s.callbacks.Entries()
}

// CallbacksAfter implements CallbackSource.
func (s *LedgerService) CallbacksAfter(seq int64, limit int) []models.CallbackEntry {
	return s.callbacks.CallbacksAfter(seq, limit)
}

// Projects returns a snapshot of every project ordered by id.
func (s *LedgerService) Projects() []models.Project {
	s.mu.RLock()
	accounts := make([]*projectAccount, 0, len(s.projects))
	for _, p := range s.projects {
		accounts = append(accounts, p)
	}
	s.mu.RUnlock()

	out := make([]models.Project, 0, len(accounts))
	for _, p := range accounts {
		out = append(out, p.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPayouts returns recorded payouts in creation order, optionally filtered by project.
func (s *LedgerService) ListPayouts(projectID string) []models.Payout {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Payout, 0, len(s.order))
	for _, id := range s.order {
		p := s.payouts[id]
		if projectID != "" && p.ProjectID != projectID {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// RateLimitCount returns the recipient's committed payouts inside the current window.
func (s *LedgerService) RateLimitCount(gamertag string) int {
	return s.limiter.Count(gamertag)
}

// projectBooks is one project's totals taken in the same snapshot as the
// payouts recorded against it.
type projectBooks struct {
	models.Project
	inFlight int64
	recorded int64
}

// books snapshots every project together with its recorded payout totals.
// commit records a payout and clears its in-flight charge under s.mu, so the
// two views always agree.
func (s *LedgerService) books() []projectBooks {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recorded := make(map[string]int64, len(s.projects))
	for _, p := range s.payouts {
		recorded[p.ProjectID] += p.TotalCost
	}

	out := make([]projectBooks, 0, len(s.projects))
	for id, account := range s.projects {
		account.mu.Lock()
		out = append(out, projectBooks{
			Project:  models.Project{ID: account.id, Balance: account.balance, Funded: account.funded, Spent: account.spent},
			inFlight: account.inFlight,
			recorded: recorded[id],
		})
		account.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *LedgerService) project(id string) *projectAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projects[id]
}

func (s *LedgerService) projectOrCreate(id string) *projectAccount {
	if p := s.project(id); p != nil {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[id]; ok {
		return p
	}
	p := &projectAccount{id: id}
	s.projects[id] = p
	return p
}
