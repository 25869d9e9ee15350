package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/ayo6706/payout-ledger/internal/gateway"
	"github.com/ayo6706/payout-ledger/internal/idempotency"
	"github.com/ayo6706/payout-ledger/internal/models"
	"github.com/ayo6706/payout-ledger/internal/observability"
	"github.com/ayo6706/payout-ledger/internal/ratelimit"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreatePayoutRequest holds the parameters for creating a payout. Amount is a
// pointer so that an absent amount can be told apart from an explicit zero.
type CreatePayoutRequest struct {
	Gamertag       string
	Amount         *int64
	ProjectID      string
	IdempotencyKey string
	CallbackURL    string
	Description    string
	// ExpiresIn is the claim window in seconds; nil or non-positive uses the default TTL.
	// Values above domain.MaxExpiresIn are capped.
	ExpiresIn  *int64
	InternalID string
}

// PayoutResult is returned by CreatePayout. Duplicate is set when the payout
// was resolved from the idempotency index instead of being created.
type PayoutResult struct {
	Payout    models.Payout
	Duplicate bool
}

// CreatePayout validates, rate-limits, charges and records a payout.
//
// Steps run in a fixed order and the first failure is returned: presence,
// amount range, description length, callback URL, idempotency replay, rate
// limit, project and balance, then settlement and commit.
func (s *LedgerService) CreatePayout(ctx context.Context, req CreatePayoutRequest) (*PayoutResult, error) {
	req.Gamertag = strings.TrimSpace(req.Gamertag)
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.InternalID = strings.TrimSpace(req.InternalID)

	if err := validatePayoutRequest(req); err != nil {
		observability.IncrementPayout("rejected_validation")
		return nil, err
	}
	amount := *req.Amount

	var reservation idempotency.Reservation
	if req.IdempotencyKey != "" {
		res, err := s.idem.Acquire(ctx, req.ProjectID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("wait for idempotency key: %w", err)
		}
		if !res.Reserved {
			return s.replay(req, res.PayoutID)
		}
		reservation = res
	}
	committed := false
	defer func() {
		if !committed {
			s.idem.Release(reservation)
		}
	}()

	slot, retryAfter, ok := s.limiter.Reserve(req.Gamertag)
	if !ok {
		observability.IncrementPayout("rejected_rate_limit")
		seconds := int64(math.Ceil(retryAfter.Seconds()))
		return nil, newError(ErrRateLimitExceeded, map[string]any{
			"gamertag":   req.Gamertag,
			"limit":      s.limiter.Limit(),
			"window":     int64(s.limiter.Window().Seconds()),
			"retryAfter": seconds,
		}, "rate limit exceeded for %s: max %d payouts per %s", req.Gamertag, s.limiter.Limit(), s.limiter.Window())
	}
	defer func() {
		if !committed {
			slot.Release()
		}
	}()

	fee := domain.Fee(amount)
	total := domain.TotalCost(amount)

	account, err := s.charge(req.ProjectID, amount, fee, total)
	if err != nil {
		return nil, err
	}

	_, err = s.gateway.SendPayout(ctx, req.Gamertag, amount)
	if err != nil {
		return nil, s.settlementFailed(ctx, account, req, amount, fee, total, err)
	}

	payout := s.commit(ctx, req, account, reservation, slot, amount, fee, total)
	committed = true
	return &PayoutResult{Payout: payout}, nil
}

func validatePayoutRequest(req CreatePayoutRequest) error {
	var missing []string
	if req.Gamertag == "" {
		missing = append(missing, "gamertag")
	}
	if req.Amount == nil {
		missing = append(missing, "amount")
	}
	if req.ProjectID == "" {
		missing = append(missing, "projectId")
	}
	if len(missing) > 0 {
		return newError(ErrValidation, map[string]any{"missingFields": missing},
			"missing required fields: %s", strings.Join(missing, ", "))
	}

	amount := *req.Amount
	if amount < domain.MinPayoutAmount || amount > domain.MaxPayoutAmount {
		return newError(ErrInvalidAmount, map[string]any{
			"amount": amount,
			"min":    domain.MinPayoutAmount,
			"max":    domain.MaxPayoutAmount,
		}, "amount must be between %d and %d sats", domain.MinPayoutAmount, domain.MaxPayoutAmount)
	}

	if n := utf8.RuneCountInString(req.Description); n > domain.MaxDescriptionLength {
		return newError(ErrDescriptionTooLong, map[string]any{
			"length":    n,
			"maxLength": domain.MaxDescriptionLength,
		}, "description must be at most %d characters", domain.MaxDescriptionLength)
	}

	if req.CallbackURL != "" && !strings.HasPrefix(req.CallbackURL, "http://") && !strings.HasPrefix(req.CallbackURL, "https://") {
		return newError(ErrInvalidCallbackURL, map[string]any{"callbackUrl": req.CallbackURL},
			"callbackUrl must start with http:// or https://")
	}
	return nil
}

// replay returns the payout already bound to the request's idempotency key.
// It touches neither balances nor rate-limit windows.
func (s *LedgerService) replay(req CreatePayoutRequest, payoutID string) (*PayoutResult, error) {
	s.mu.RLock()
	p, ok := s.payouts[payoutID]
	var payout models.Payout
	if ok {
		payout = *p
	}
	s.mu.RUnlock()

	if !ok {
		zap.L().Error("idempotency index references unknown payout",
			zap.String("payout_id", payoutID),
			zap.String("project_id", req.ProjectID),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
		return nil, fmt.Errorf("idempotency key %q resolves to unknown payout %s", req.IdempotencyKey, payoutID)
	}

	observability.IncrementIdempotencyEvent("replay")
	observability.IncrementPayout("duplicate")
	zap.L().Info("payout idempotent replay",
		zap.String("payout_id", payout.ID),
		zap.String("project_id", req.ProjectID),
		zap.String("idempotency_key", req.IdempotencyKey),
	)
	return &PayoutResult{Payout: payout, Duplicate: true}, nil
}

// charge checks the project balance and tentatively deducts total under the
// project lock.
func (s *LedgerService) charge(projectID string, amount, fee, total int64) (*projectAccount, error) {
	account := s.project(projectID)
	if account == nil {
		if s.opts.LegacyUnknownProjectZeroBalance {
			observability.IncrementPayout("rejected_insufficient_balance")
			return nil, insufficientBalance(amount, fee, total, 0)
		}
		observability.IncrementPayout("rejected_project_not_found")
		return nil, newError(ErrProjectNotFound, map[string]any{"projectId": projectID}, "project %s not found", projectID)
	}

	account.mu.Lock()
	defer account.mu.Unlock()

	if account.balance < total {
		observability.IncrementPayout("rejected_insufficient_balance")
		return nil, insufficientBalance(amount, fee, total, account.balance)
	}
	account.balance -= total
	account.spent += total
	account.inFlight += total
	return account, nil
}

func insufficientBalance(amount, fee, total, balance int64) error {
	return newError(ErrInsufficientBalance, map[string]any{
		"amount":    amount,
		"fee":       fee,
		"totalCost": total,
		"balance":   balance,
	}, "insufficient balance: payout requires %d sats (amount %d + fee %d), balance is %d", total, amount, fee, balance)
}

// refund reverses a tentative charge.
func (s *LedgerService) refund(account *projectAccount, total int64) int64 {
	account.mu.Lock()
	defer account.mu.Unlock()
	account.balance += total
	account.spent -= total
	account.inFlight -= total
	return account.balance
}

// keepCharge leaves a tentative charge in place without a payout to show for it.
func (s *LedgerService) keepCharge(account *projectAccount, total int64) int64 {
	account.mu.Lock()
	defer account.mu.Unlock()
	account.inFlight -= total
	return account.balance
}

// settlementFailed handles a gateway error after the project was charged.
func (s *LedgerService) settlementFailed(ctx context.Context, account *projectAccount, req CreatePayoutRequest, amount, fee, total int64, err error) error {
	var timeoutErr *gateway.TimeoutError
	if errors.As(err, &timeoutErr) {
		details := map[string]any{
			"amount":     amount,
			"fee":        fee,
			"totalCost":  total,
			"rolledBack": timeoutErr.RollbackOnTimeout,
		}
		observability.IncrementGatewayTimeout(timeoutErr.RollbackOnTimeout)

		if timeoutErr.RollbackOnTimeout {
			balance := s.refund(account, total)
			details["balance"] = balance
			observability.IncrementPayout("gateway_timeout_rolled_back")
			s.audit.Write(ctx, "project", req.ProjectID, req.ProjectID, "payout_rolled_back", "", "", total, map[string]any{"gamertag": req.Gamertag})
			zap.L().Warn("gateway timeout, balance rolled back",
				zap.String("project_id", req.ProjectID),
				zap.String("gamertag", req.Gamertag),
				zap.Int64("total_cost", total),
				zap.Int64("balance", balance),
			)
			return newError(ErrGatewayTimeout, details, "payment gateway timed out; balance was rolled back")
		}

		// The charge stays in place and no payout is recorded.
		balance := s.keepCharge(account, total)
		details["balance"] = balance
		observability.IncrementPayout("gateway_timeout_charged")
		s.audit.Write(ctx, "project", req.ProjectID, req.ProjectID, "charged_without_payout", "", "", total, map[string]any{"gamertag": req.Gamertag})
		zap.L().Error("gateway timeout, balance NOT rolled back",
			zap.String("project_id", req.ProjectID),
			zap.String("gamertag", req.Gamertag),
			zap.Int64("total_cost", total),
			zap.Int64("balance", balance),
		)
		return newError(ErrGatewayTimeout, details, "payment gateway timed out; balance was not rolled back")
	}

	balance := s.refund(account, total)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		observability.IncrementPayout("canceled")
		zap.L().Warn("payout canceled during settlement, balance restored",
			zap.String("project_id", req.ProjectID),
			zap.Int64("balance", balance),
			zap.Error(err),
		)
		return fmt.Errorf("settle payout: %w", err)
	}

	observability.IncrementPayout("gateway_error")
	zap.L().Error("gateway settlement failed, balance restored", zap.Error(err), zap.String("project_id", req.ProjectID))
	return fmt.Errorf("settle payout: %w", err)
}

func (s *LedgerService) commit(ctx context.Context, req CreatePayoutRequest, account *projectAccount, reservation idempotency.Reservation, slot *ratelimit.Slot, amount, fee, total int64) models.Payout {
	now := s.now().UTC()
	ttl := s.opts.PayoutTTL
	if req.ExpiresIn != nil && *req.ExpiresIn > 0 {
		ttl = time.Duration(min(*req.ExpiresIn, domain.MaxExpiresIn)) * time.Second
	}

	p := &models.Payout{
		ID:             uuid.NewString(),
		Gamertag:       req.Gamertag,
		Amount:         amount,
		Fee:            fee,
		TotalCost:      total,
		ProjectID:      req.ProjectID,
		IdempotencyKey: req.IdempotencyKey,
		InternalID:     req.InternalID,
		Description:    req.Description,
		CallbackURL:    req.CallbackURL,
		Status:         domain.PayoutStatusCompleted,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}

	s.mu.Lock()
	s.payouts[p.ID] = p
	if p.InternalID != "" {
		s.byInternalID[p.InternalID] = p.ID
	}
	s.order = append(s.order, p.ID)
	account.mu.Lock()
	account.inFlight -= total
	account.mu.Unlock()
	payout := *p
	s.mu.Unlock()

	if reservation.Reserved {
		s.idem.Finalize(reservation, payout.ID)
		observability.IncrementIdempotencyEvent("finalized")
	}
	slot.Commit()

	if payout.CallbackURL != "" {
		s.callbacks.Append(payout.CallbackURL, domain.EventPayoutCreated, payout, now)
	}

	observability.IncrementPayout("created")
	observability.AddPayoutSats(amount, fee)
	s.audit.Write(ctx, "payout", payout.ID, payout.ProjectID, "created", "", payout.Status, total, map[string]any{
		"gamertag": payout.Gamertag,
		"amount":   amount,
		"fee":      fee,
	})
	zap.L().Info("payout created",
		zap.String("payout_id", payout.ID),
		zap.String("project_id", payout.ProjectID),
		zap.String("gamertag", payout.Gamertag),
		zap.Int64("amount", amount),
		zap.Int64("fee", fee),
	)
	return payout
}

// GetPayout returns the payout with id, expiring it first if it is pending
// and past its expiry.
func (s *LedgerService) GetPayout(ctx context.Context, id string) (*models.Payout, error) {
	s.mu.Lock()
	p, ok := s.payouts[id]
	if !ok {
		s.mu.Unlock()
		return nil, newError(ErrPayoutNotFound, map[string]any{"id": id}, "payout %s not found", id)
	}
	expired := s.expireIfDueLocked(p)
	payout := *p
	s.mu.Unlock()

	if expired {
		s.afterExpiry(ctx, payout, domain.PayoutStatusPending)
	}
	return &payout, nil
}

// GetPayoutByInternalID looks a payout up by its client correlation id.
func (s *LedgerService) GetPayoutByInternalID(ctx context.Context, internalID string) (*models.Payout, error) {
	s.mu.RLock()
	id, ok := s.byInternalID[internalID]
	s.mu.RUnlock()
	if !ok {
		return nil, newError(ErrPayoutNotFound, map[string]any{"internalId": internalID}, "payout with internalId %s not found", internalID)
	}
	return s.GetPayout(ctx, id)
}

func (s *LedgerService) expireIfDueLocked(p *models.Payout) bool {
	if p.Status != domain.PayoutStatusPending {
		return false
	}
	now := s.now().UTC()
	if !now.After(p.ExpiresAt) {
		return false
	}
	p.Status = domain.PayoutStatusExpired
	p.UpdatedAt = now
	p.ExpiredAt = &now
	return true
}

func (s *LedgerService) afterExpiry(ctx context.Context, payout models.Payout, prev string) {
	if payout.CallbackURL != "" {
		s.callbacks.Append(payout.CallbackURL, domain.EventPayoutExpired, payout, payout.UpdatedAt)
	}
	s.audit.Write(ctx, "payout", payout.ID, payout.ProjectID, "expired", prev, payout.Status, 0, nil)
	zap.L().Info("payout expired", zap.String("payout_id", payout.ID), zap.String("prev_status", prev))
}

// UpdateStatus sets a payout's status. Any status may follow any other unless
// strict transitions are enabled.
func (s *LedgerService) UpdateStatus(ctx context.Context, id, status string) (*models.Payout, error) {
	if !domain.IsValidPayoutStatus(status) {
		return nil, newError(ErrInvalidStatus, map[string]any{
			"status":        status,
			"validStatuses": domain.PayoutStatuses,
		}, "invalid status %q, must be one of: %s", status, strings.Join(domain.PayoutStatuses, ", "))
	}

	s.mu.Lock()
	p, ok := s.payouts[id]
	if !ok {
		s.mu.Unlock()
		return nil, newError(ErrPayoutNotFound, map[string]any{"id": id}, "payout %s not found", id)
	}
	prev := p.Status
	if s.opts.StrictStatusTransitions && !allowedTransition(prev, status) {
		s.mu.Unlock()
		return nil, newError(ErrInvalidStatusTransition, map[string]any{
			"from": prev,
			"to":   status,
		}, "cannot transition payout from %s to %s", prev, status)
	}
	now := s.now().UTC()
	p.Status = status
	p.UpdatedAt = now
	payout := *p
	s.mu.Unlock()

	if payout.CallbackURL != "" {
		s.callbacks.Append(payout.CallbackURL, domain.EventPayoutStatusChanged, payout, now)
	}
	s.audit.Write(ctx, "payout", payout.ID, payout.ProjectID, "status_updated", prev, status, 0, nil)
	zap.L().Info("payout status updated", zap.String("payout_id", id), zap.String("from", prev), zap.String("to", status))
	return &payout, nil
}

func allowedTransition(from, to string) bool {
	if from == to {
		return true
	}
	return from == domain.PayoutStatusPending
}

// ExpirePayout forces a payout's expiry into the past and marks it expired,
// whatever its current status.
func (s *LedgerService) ExpirePayout(ctx context.Context, id string) (*models.Payout, error) {
	s.mu.Lock()
	p, ok := s.payouts[id]
	if !ok {
		s.mu.Unlock()
		return nil, newError(ErrPayoutNotFound, map[string]any{"id": id}, "payout %s not found", id)
	}
	now := s.now().UTC()
	prev := p.Status
	p.ExpiresAt = now.Add(-time.Second)
	p.Status = domain.PayoutStatusExpired
	p.UpdatedAt = now
	p.ExpiredAt = &now
	payout := *p
	s.mu.Unlock()

	s.afterExpiry(ctx, payout, prev)
	return &payout, nil
}
