package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-key sliding-window counter. A key may hold at most Limit
// timestamps within the trailing Window; expired timestamps are pruned lazily
// whenever the key is checked.
type Limiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	now       func() time.Time
	windows   map[string]*window
	lastSweep time.Time
}

type window struct {
	stamps  []time.Time
	pending int
}

// Slot is a capacity reservation taken by Reserve. It must be either committed
// or released exactly once.
type Slot struct {
	l    *Limiter
	key  string
	w    *window
	done bool
}

// New creates a limiter. A nil clock defaults to time.Now.
func New(limit int, size time.Duration, clock func() time.Time) *Limiter {
	if clock == nil {
		clock = time.Now
	}
	return &Limiter{
		limit:     limit,
		window:    size,
		now:       clock,
		windows:   make(map[string]*window),
		lastSweep: clock(),
	}
}

// Reserve takes a slot for key if fewer than Limit timestamps and in-flight
// reservations fall inside the window. Otherwise it returns the time until the
// oldest timestamp leaves the window.
func (l *Limiter) Reserve(key string) (*Slot, time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	w := l.windowFor(key)
	w.prune(now.Add(-l.window))

	if len(w.stamps)+w.pending >= l.limit {
		return nil, l.retryAfter(w, now), false
	}
	w.pending++
	return &Slot{l: l, key: key, w: w}, 0, true
}

// Count returns the number of committed timestamps for key inside the window.
func (l *Limiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		return 0
	}
	w.prune(l.now().Add(-l.window))
	n := len(w.stamps)
	l.dropIfIdle(key, w)
	return n
}

func (l *Limiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Reset forgets every key.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.windows = make(map[string]*window)
	l.lastSweep = l.now()
	l.mu.Unlock()
}

// Limit returns the configured maximum per window.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Commit turns the reservation into a timestamp at the current time.
func (s *Slot) Commit() {
	if s == nil {
		return
	}
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.w.pending--
	s.w.stamps = append(s.w.stamps, s.l.now())
}

// Release gives the reservation back without recording a timestamp.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.w.pending--
	s.w.prune(s.l.now().Add(-s.l.window))
	s.l.dropIfIdle(s.key, s.w)
}

func (l *Limiter) windowFor(key string) *window {
	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	return w
}

// dropIfIdle forgets key once it holds no timestamps and no reservations.
// Callers hold l.mu.
func (l *Limiter) dropIfIdle(key string, w *window) {
	if len(w.stamps) == 0 && w.pending == 0 && l.windows[key] == w {
		delete(l.windows, key)
	}
}

// sweep drops idle keys at most once per window. Callers hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-l.window)
	for key, w := range l.windows {
		w.prune(cutoff)
		l.dropIfIdle(key, w)
	}
}

func (l *Limiter) retryAfter(w *window, now time.Time) time.Duration {
	if len(w.stamps) == 0 {
		return l.window
	}
	wait := w.stamps[0].Add(l.window).Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
