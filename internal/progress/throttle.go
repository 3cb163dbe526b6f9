package progress

import (
	"sync"
	"time"
)

// Throttle limits how often a status line may be re-rendered. The first call
// is always allowed.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewThrottle returns a throttle that allows at most one render per interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now}
}

// WithClock replaces the time source. It is intended for tests.
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	if now != nil {
		t.now = now
	}
	return t
}

// Allow reports whether a render may happen now and, if so, records it.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// Force records a render regardless of the interval, used for phase changes
// and terminal states that must always be shown.
func (t *Throttle) Force() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = t.now()
}
