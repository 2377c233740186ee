package platform

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RateBudget tracks the reactive call budget for one protocol. Limits are
// discovered from response metadata, not pre-configured. All fields are
// atomics: two records can be pushed concurrently against the same protocol.
type RateBudget struct {
	used       atomic.Int64
	limit      atomic.Int64
	observedAt atomic.Int64 // unix nanos of the last Observe
	restoreAt  atomic.Int64 // unix nanos; zero means not throttled
}

// Observe updates the budget from a response's rate metadata.
func (b *RateBudget) Observe(used, limit int64) {
	if limit > 0 {
		b.limit.Store(limit)
	}
	b.used.Store(used)
	b.observedAt.Store(time.Now().UnixNano())
}

// Penalize marks the budget exhausted until the deadline (set after a 429).
func (b *RateBudget) Penalize(until time.Time) {
	b.restoreAt.Store(until.UnixNano())
}

// Snapshot returns the current counters.
func (b *RateBudget) Snapshot() (used, limit int64) {
	return b.used.Load(), b.limit.Load()
}

// Throttled reports whether calls should wait, and for how long. A
// full-bucket observation goes stale after the refill window: the platform
// restores budget over time whether or not we call, so waiting out the
// window must readmit calls even when no response has refreshed the counter.
func (b *RateBudget) Throttled(now time.Time) (bool, time.Duration) {
	if restore := b.restoreAt.Load(); restore > now.UnixNano() {
		return true, time.Duration(restore - now.UnixNano())
	}
	used, limit := b.used.Load(), b.limit.Load()
	if limit > 0 && used >= limit {
		age := time.Duration(now.UnixNano() - b.observedAt.Load())
		if remaining := defaultRestoreWindow - age; remaining > 0 {
			return true, remaining
		}
	}
	return false, 0
}

const defaultRestoreWindow = 2 * time.Second

// Limiter guards remote calls per protocol: it throttles before the budget
// runs out and carries the auth circuit that halts automatic pushes after a
// credential failure.
type Limiter struct {
	mu      sync.Mutex
	budgets map[Protocol]*RateBudget
	halted  map[Protocol]*atomic.Bool
}

// NewLimiter creates a limiter covering both protocols.
func NewLimiter() *Limiter {
	l := &Limiter{
		budgets: make(map[Protocol]*RateBudget),
		halted:  make(map[Protocol]*atomic.Bool),
	}
	for _, p := range []Protocol{ProtocolRest, ProtocolGraph} {
		l.budgets[p] = &RateBudget{}
		l.halted[p] = &atomic.Bool{}
	}
	return l
}

// Budget returns the budget for a protocol.
func (l *Limiter) Budget(p Protocol) *RateBudget {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.budgets[p]
}

// Guard blocks until the protocol has call budget or ctx is done.
// This is the WaitFor suspension point of the rate policy.
func (l *Limiter) Guard(ctx context.Context, p Protocol) error {
	for {
		throttled, wait := l.Budget(p).Throttled(time.Now())
		if !throttled {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Observe records rate metadata from a completed call.
func (l *Limiter) Observe(p Protocol, used, limit int64) {
	l.Budget(p).Observe(used, limit)
}

// Penalize marks a protocol throttled until now+retryAfter.
func (l *Limiter) Penalize(p Protocol, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = defaultRestoreWindow
	}
	l.Budget(p).Penalize(time.Now().Add(retryAfter))
}

// --- Auth circuit ---
// An auth failure against a broken credential must not turn into a retry
// storm across all pending records; the whole protocol halts until an
// operator confirms the credential and resumes.

// Halt stops automatic pushes for the protocol.
func (l *Limiter) Halt(p Protocol) {
	l.flag(p).Store(true)
}

// Resume re-enables automatic pushes for the protocol.
func (l *Limiter) Resume(p Protocol) {
	l.flag(p).Store(false)
}

// ResumeAll clears the auth circuit on both protocols.
func (l *Limiter) ResumeAll() {
	for _, p := range []Protocol{ProtocolRest, ProtocolGraph} {
		l.Resume(p)
	}
}

// Halted reports whether the protocol's auth circuit is open.
func (l *Limiter) Halted(p Protocol) bool {
	return l.flag(p).Load()
}

func (l *Limiter) flag(p Protocol) *atomic.Bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted[p]
}
