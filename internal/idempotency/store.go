package idempotency

import (
	"context"
	"sync"
)

// Scope controls how idempotency keys are namespaced.
type Scope int

const (
	// ScopeProject namespaces keys per project.
	ScopeProject Scope = iota
	// ScopeGlobal shares one key space across all projects. Two projects that
	// pick the same key collide; kept only to reproduce that behaviour in tests.
	ScopeGlobal
)

type entry struct {
	payoutID string
	settled  bool
	done     chan struct{}
	once     sync.Once
}

func (e *entry) close() {
	e.once.Do(func() { close(e.done) })
}

// Reservation is the outcome of Store.Reserve. Exactly one of three states holds:
// the key already resolved to a payout (PayoutID set), another request holds the
// key (Wait non-nil), or the caller now holds the key (Reserved).
type Reservation struct {
	PayoutID string
	Wait     <-chan struct{}
	Reserved bool

	key   string
	entry *entry
}

// Store maps idempotency keys to the payout they produced. Check-and-create is
// serialized per key: while one request holds a key, others wait for it to be
// finalized or released.
type Store struct {
	mu      sync.Mutex
	scope   Scope
	entries map[string]*entry
}

func NewStore(scope Scope) *Store {
	return &Store{scope: scope, entries: make(map[string]*entry)}
}

// Reserve claims key for projectID unless it is already resolved or held.
func (s *Store) Reserve(projectID, key string) Reservation {
	k := s.scopedKey(projectID, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[k]; ok {
		if e.settled {
			return Reservation{PayoutID: e.payoutID, key: k}
		}
		return Reservation{Wait: e.done, key: k}
	}

	e := &entry{done: make(chan struct{})}
	s.entries[k] = e
	return Reservation{Reserved: true, key: k, entry: e}
}

// Finalize binds a held key to payoutID and wakes waiters.
func (s *Store) Finalize(res Reservation, payoutID string) {
	if !res.Reserved || res.entry == nil {
		return
	}
	s.mu.Lock()
	res.entry.payoutID = payoutID
	res.entry.settled = true
	s.mu.Unlock()
	res.entry.close()
}

// Release gives up a held key without binding it, so a later request can claim it.
func (s *Store) Release(res Reservation) {
	if !res.Reserved || res.entry == nil {
		return
	}
	s.mu.Lock()
	if cur, ok := s.entries[res.key]; ok && cur == res.entry {
		delete(s.entries, res.key)
	}
	s.mu.Unlock()
	res.entry.close()
}

// lookup returns the payout bound to key, if any.
func (s *Store) lookup(projectID, key string) (string, bool) {
	k := s.scopedKey(projectID, key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok || !e.settled {
		return "", false
	}
	return e.payoutID, true
}

// Acquire loops over Reserve until the key either resolves to a payout or is
// held by the caller, waiting on in-flight holders in between.
func (s *Store) Acquire(ctx context.Context, projectID, key string) (Reservation, error) {
	for {
		res := s.Reserve(projectID, key)
		if res.Reserved || res.PayoutID != "" {
			return res, nil
		}
		select {
		case <-res.Wait:
		case <-ctx.Done():
			return Reservation{}, ctx.Err()
		}
	}
}

// Reset drops every key. Requests holding a key keep their reservation but
// finalizing it no longer affects the store.
func (s *Store) Reset() {
	s.mu.Lock()
	old := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range old {
		if !e.settled {
			e.close()
		}
	}
}

// resolved returns the number of resolved keys.
func (s *Store) resolved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.settled {
			n++
		}
	}
	return n
}

func (s *Store) scopedKey(projectID, key string) string {
	if s.scope == ScopeGlobal {
		return key
	}
	return projectID + "\x00" + key
}
