package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: threshold, Cooldown: cooldown}, nil)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		require.True(t, b.Allow(), "call %d should be allowed", i)
		b.Record(false)
		assert.Equal(t, Closed, b.CurrentState(), "breaker must stay closed below threshold")
	}

	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.CurrentState(), "5th consecutive failure must open the circuit")
	assert.False(t, b.Allow(), "open circuit must reject calls during cooldown")
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.Allow()
	b.Record(false)
	b.Allow()
	b.Record(false)
	b.Allow()
	b.Record(true) // resets the consecutive counter

	b.Allow()
	b.Record(false)
	b.Allow()
	b.Record(false)
	assert.Equal(t, Closed, b.CurrentState(), "non-consecutive failures must not open the circuit")
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.Allow()
	b.Record(false)
	require.Equal(t, Open, b.CurrentState())

	// Cooldown not elapsed yet.
	*now = now.Add(30 * time.Second)
	assert.False(t, b.Allow())

	// Cooldown elapsed: exactly one probe is admitted.
	*now = now.Add(31 * time.Second)
	assert.True(t, b.Allow(), "first caller after cooldown becomes the probe")
	assert.Equal(t, HalfOpen, b.CurrentState())
	assert.False(t, b.Allow(), "only one probe may be in flight")

	// Probe success closes the circuit.
	b.Record(true)
	assert.Equal(t, Closed, b.CurrentState())
	assert.True(t, b.Allow())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.Allow()
	b.Record(false)
	*now = now.Add(2 * time.Minute)
	require.True(t, b.Allow())
	require.Equal(t, HalfOpen, b.CurrentState())

	b.Record(false)
	assert.Equal(t, Open, b.CurrentState(), "failed probe must reopen the circuit")
	assert.False(t, b.Allow(), "cooldown restarts after a failed probe")

	*now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow(), "a fresh probe is admitted after the restarted cooldown")
}

func TestBreakerTransitionCallback(t *testing.T) {
	var transitions []State
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute}, func(s State) {
		transitions = append(transitions, s)
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.Allow()
	b.Record(false)
	now = now.Add(2 * time.Minute)
	b.Allow()
	b.Record(true)

	assert.Equal(t, []State{Open, HalfOpen, Closed}, transitions)
}
