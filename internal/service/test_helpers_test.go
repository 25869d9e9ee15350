package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/payout-ledger/internal/gateway"
	"github.com/ayo6706/payout-ledger/internal/models"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memoryAuditSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (m *memoryAuditSink) InsertAuditEvent(_ context.Context, event models.AuditEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

func (m *memoryAuditSink) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Action)
	}
	return out
}

type testLedger struct {
	*LedgerService
	gateway *gateway.MockGateway
	clock   *testClock
	audit   *memoryAuditSink
}

// setupLedger builds a ledger with an instant gateway, a fixed random draw of
// 0.5 and a controllable clock.
func setupLedger(t *testing.T, mutate func(*Options), gwOpts ...gateway.Option) *testLedger {
	t.Helper()

	clock := newTestClock()
	opts := []gateway.Option{
		gateway.WithSettlementDelay(0, 0),
		gateway.WithTimeoutDelay(0),
		gateway.WithRandom(func() float64 { return 0.5 }),
	}
	gw := gateway.NewMockGateway(append(opts, gwOpts...)...)
	sink := &memoryAuditSink{}

	options := DefaultOptions()
	options.Clock = clock.Now
	if mutate != nil {
		mutate(&options)
	}

	return &testLedger{
		LedgerService: NewLedgerService(gw, sink, options),
		gateway:       gw,
		clock:         clock,
		audit:         sink,
	}
}

func (l *testLedger) fund(t *testing.T, projectID string, amount int64) {
	t.Helper()
	_, err := l.FundProject(context.Background(), projectID, amount)
	require.NoError(t, err)
}

func (l *testLedger) balance(t *testing.T, projectID string) int64 {
	t.Helper()
	p, err := l.GetBalance(context.Background(), projectID)
	require.NoError(t, err)
	return p.Balance
}

func (l *testLedger) enableTimeouts(rollback bool) {
	l.gateway.ConfigureFailureInjection(gateway.FailureInjectionUpdate{
		Enabled:           ptr(true),
		TimeoutRate:       ptr(1.0),
		RollbackOnTimeout: ptr(rollback),
	})
}

func ptr[T any](v T) *T { return &v }

func payoutReq(projectID, gamertag string, amount int64) CreatePayoutRequest {
	return CreatePayoutRequest{
		Gamertag:  gamertag,
		Amount:    ptr(amount),
		ProjectID: projectID,
	}
}
