package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ayo6706/payout-ledger/internal/models"
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("payment gateway timeout")

// TimeoutError reports a simulated settlement timeout together with the
// rollback policy that was in force when the attempt started.
type TimeoutError struct {
	RollbackOnTimeout bool
}

func (e *TimeoutError) Error() string {
	return ErrTimeout.Error()
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Gateway represents the external settlement network.
type Gateway interface {
	// SendPayout settles amount to recipient and returns a gateway reference.
	SendPayout(ctx context.Context, recipient string, amount int64) (string, error)
	FailureInjection() models.FailureInjection
	ConfigureFailureInjection(update FailureInjectionUpdate) models.FailureInjection
	ResetFailureInjection()
}

// FailureInjectionUpdate is a partial update; nil fields are left unchanged.
type FailureInjectionUpdate struct {
	Enabled           *bool
	TimeoutRate       *float64
	RollbackOnTimeout *bool
}

// MockGateway simulates the settlement network. Every call sleeps for a random
// settlement delay; when failure injection is enabled a share of calls sleep for
// TimeoutDelay instead and fail with *TimeoutError.
type MockGateway struct {
	mu        sync.RWMutex
	injection models.FailureInjection

	minDelay     time.Duration
	maxDelay     time.Duration
	timeoutDelay time.Duration
	random       func() float64
}

// Option configures a MockGateway.
type Option func(*MockGateway)

// WithSettlementDelay sets the range the per-call settlement delay is drawn from.
func WithSettlementDelay(min, max time.Duration) Option {
	return func(g *MockGateway) {
		if max < min {
			max = min
		}
		g.minDelay = min
		g.maxDelay = max
	}
}

// WithTimeoutDelay sets how long a simulated timeout blocks before failing.
func WithTimeoutDelay(d time.Duration) Option {
	return func(g *MockGateway) {
		g.timeoutDelay = d
	}
}

// WithRandom replaces the uniform [0,1) source used for timeout draws.
func WithRandom(random func() float64) Option {
	return func(g *MockGateway) {
		if random != nil {
			g.random = random
		}
	}
}

// NewMockGateway creates a MockGateway with failure injection disabled.
func NewMockGateway(opts ...Option) *MockGateway {
	g := &MockGateway{
		minDelay:     50 * time.Millisecond,
		maxDelay:     150 * time.Millisecond,
		timeoutDelay: 2 * time.Second,
		random:       rand.Float64,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SendPayout simulates settlement latency and, when configured, a gateway timeout.
// A canceled context aborts the wait and returns the context error.
func (g *MockGateway) SendPayout(ctx context.Context, recipient string, amount int64) (string, error) {
	injection := g.FailureInjection()

	if injection.Enabled && g.random() < injection.TimeoutRate {
		if err := sleep(ctx, g.timeoutDelay); err != nil {
			return "", fmt.Errorf("gateway call canceled: %w", err)
		}
		return "", &TimeoutError{RollbackOnTimeout: injection.RollbackOnTimeout}
	}

	if err := sleep(ctx, g.settlementDelay()); err != nil {
		return "", fmt.Errorf("gateway call canceled: %w", err)
	}

	// Format: MOCK-YYYYMMDD-HHMMSS-XXXXX
	ref := fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	return ref, nil
}

// FailureInjection returns the current configuration.
func (g *MockGateway) FailureInjection() models.FailureInjection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.injection
}

// ConfigureFailureInjection applies update and returns the resulting configuration.
// TimeoutRate is clamped to [0, 1].
func (g *MockGateway) ConfigureFailureInjection(update FailureInjectionUpdate) models.FailureInjection {
	g.mu.Lock()
	defer g.mu.Unlock()

	if update.Enabled != nil {
		g.injection.Enabled = *update.Enabled
	}
	if update.TimeoutRate != nil {
		g.injection.TimeoutRate = clamp(*update.TimeoutRate)
	}
	if update.RollbackOnTimeout != nil {
		g.injection.RollbackOnTimeout = *update.RollbackOnTimeout
	}
	return g.injection
}

// ResetFailureInjection restores the disabled default.
func (g *MockGateway) ResetFailureInjection() {
	g.mu.Lock()
	g.injection = models.FailureInjection{}
	g.mu.Unlock()
}

func (g *MockGateway) settlementDelay() time.Duration {
	spread := g.maxDelay - g.minDelay
	if spread <= 0 {
		return g.minDelay
	}
	return g.minDelay + time.Duration(g.random()*float64(spread))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clamp(rate float64) float64 {
	switch {
	case rate != rate: // NaN
		return 0
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	default:
		return rate
	}
}
