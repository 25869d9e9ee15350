package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveFinalizeLookup(t *testing.T) {
	s := NewStore(ScopeProject)

	res := s.Reserve("proj-a", "key-1")
	require.True(t, res.Reserved)

	_, ok := s.lookup("proj-a", "key-1")
	assert.False(t, ok)

	held := s.Reserve("proj-a", "key-1")
	assert.False(t, held.Reserved)
	assert.NotNil(t, held.Wait)

	s.Finalize(res, "payout-1")

	id, ok := s.lookup("proj-a", "key-1")
	require.True(t, ok)
	assert.Equal(t, "payout-1", id)

	select {
	case <-held.Wait:
	default:
		t.Fatal("waiter was not woken by Finalize")
	}

	again := s.Reserve("proj-a", "key-1")
	assert.Equal(t, "payout-1", again.PayoutID)
	assert.False(t, again.Reserved)
	assert.Equal(t, 1, s.resolved())
}

func TestReleaseLetsNextRequestClaim(t *testing.T) {
	s := NewStore(ScopeProject)

	res := s.Reserve("proj-a", "key-1")
	require.True(t, res.Reserved)
	s.Release(res)

	next := s.Reserve("proj-a", "key-1")
	assert.True(t, next.Reserved)
	assert.Equal(t, 0, s.resolved())
}

func TestScopes(t *testing.T) {
	cases := []struct {
		name         string
		scope        Scope
		sharedAcross bool
	}{
		{name: "project", scope: ScopeProject, sharedAcross: false},
		{name: "global", scope: ScopeGlobal, sharedAcross: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore(tc.scope)
			res := s.Reserve("proj-a", "same-key")
			require.True(t, res.Reserved)
			s.Finalize(res, "payout-a")

			_, found := s.lookup("proj-b", "same-key")
			assert.Equal(t, tc.sharedAcross, found)
		})
	}
}

func TestAcquireSerializesConcurrentHolders(t *testing.T) {
	s := NewStore(ScopeProject)
	ctx := context.Background()

	var created atomic.Int32
	var wg sync.WaitGroup
	ids := make([]string, 20)

	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Acquire(ctx, "proj-a", "key-1")
			if err != nil {
				t.Error(err)
				return
			}
			if res.Reserved {
				created.Add(1)
				time.Sleep(5 * time.Millisecond)
				s.Finalize(res, "payout-1")
				ids[i] = "payout-1"
				return
			}
			ids[i] = res.PayoutID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	for _, id := range ids {
		assert.Equal(t, "payout-1", id)
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	s := NewStore(ScopeProject)
	res := s.Reserve("proj-a", "key-1")
	require.True(t, res.Reserved)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Acquire(ctx, "proj-a", "key-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResetWakesWaitersAndForgetsKeys(t *testing.T) {
	s := NewStore(ScopeProject)
	res := s.Reserve("proj-a", "key-1")
	waiter := s.Reserve("proj-a", "key-1")

	s.Reset()

	select {
	case <-waiter.Wait:
	default:
		t.Fatal("waiter was not woken by Reset")
	}

	s.Finalize(res, "payout-stale")
	_, ok := s.lookup("proj-a", "key-1")
	assert.False(t, ok)
}
