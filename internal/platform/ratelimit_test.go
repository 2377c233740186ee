package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetThrottled(t *testing.T) {
	var b RateBudget

	throttled, _ := b.Throttled(time.Now())
	assert.False(t, throttled, "empty budget must not throttle")

	b.Observe(39, 40)
	throttled, _ = b.Throttled(time.Now())
	assert.False(t, throttled)

	b.Observe(40, 40)
	throttled, wait := b.Throttled(time.Now())
	assert.True(t, throttled)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, defaultRestoreWindow)
}

func TestBudgetFullObservationExpires(t *testing.T) {
	var b RateBudget
	b.Observe(40, 40)

	// Waiting out the refill window must readmit calls even though no
	// response has refreshed the counter; otherwise one full-bucket header
	// would stall the protocol forever.
	throttled, _ := b.Throttled(time.Now().Add(defaultRestoreWindow))
	assert.False(t, throttled)

	b.Observe(40, 40)
	throttled, wait := b.Throttled(time.Now())
	assert.True(t, throttled, "a fresh full-bucket observation throttles again")
	assert.Greater(t, wait, time.Duration(0))
}

func TestGuardRecoversAfterFullBudget(t *testing.T) {
	l := NewLimiter()
	l.Budget(ProtocolRest).Observe(40, 40)
	l.Budget(ProtocolRest).observedAt.Store(time.Now().Add(-defaultRestoreWindow).UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Guard(ctx, ProtocolRest))
}

func TestBudgetPenalize(t *testing.T) {
	var b RateBudget
	now := time.Now()

	b.Penalize(now.Add(5 * time.Second))
	throttled, wait := b.Throttled(now)
	assert.True(t, throttled)
	assert.InDelta(t, float64(5*time.Second), float64(wait), float64(50*time.Millisecond))

	throttled, _ = b.Throttled(now.Add(6 * time.Second))
	assert.False(t, throttled)
}

func TestGuardPassesWhenBudgetFree(t *testing.T) {
	l := NewLimiter()
	require.NoError(t, l.Guard(context.Background(), ProtocolRest))
}

func TestGuardHonorsContext(t *testing.T) {
	l := NewLimiter()
	l.Penalize(ProtocolGraph, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Guard(ctx, ProtocolGraph)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAuthCircuitPerProtocol(t *testing.T) {
	l := NewLimiter()

	assert.False(t, l.Halted(ProtocolRest))
	assert.False(t, l.Halted(ProtocolGraph))

	l.Halt(ProtocolRest)
	assert.True(t, l.Halted(ProtocolRest))
	assert.False(t, l.Halted(ProtocolGraph), "halting one protocol must not touch the other")

	l.Resume(ProtocolRest)
	assert.False(t, l.Halted(ProtocolRest))

	l.Halt(ProtocolRest)
	l.Halt(ProtocolGraph)
	l.ResumeAll()
	assert.False(t, l.Halted(ProtocolRest))
	assert.False(t, l.Halted(ProtocolGraph))
}
