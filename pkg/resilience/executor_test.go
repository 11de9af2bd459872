package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(maxAttempts, failureThreshold int) *Executor {
	return NewExecutor(
		RetryConfig{
			MaxAttempts:   maxAttempts,
			InitialDelay:  time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2.0,
		},
		BreakerConfig{FailureThreshold: failureThreshold, Cooldown: time.Minute},
		0, // no implicit timeout in tests
		nil,
	)
}

func TestCallRetriesTransientErrors(t *testing.T) {
	e := newTestExecutor(3, 10)

	calls := 0
	err := e.Call(context.Background(), "flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("connection refused")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCallDoesNotRetryPermanentErrors(t *testing.T) {
	e := newTestExecutor(3, 10)

	calls := 0
	cause := errors.New("path not allowed")
	err := e.Call(context.Background(), "tool", func(context.Context) error {
		calls++
		return Permanent(cause)
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsPermanent(err))
}

func TestCallPermanentErrorsDoNotTripCircuit(t *testing.T) {
	e := newTestExecutor(3, 2)

	// Far more bad-input failures than the breaker threshold.
	for i := 0; i < 5; i++ {
		err := e.Call(context.Background(), "tool:read", func(context.Context) error {
			return Permanent(errors.New("path not allowed"))
		}, nil)
		require.Error(t, err)
	}
	assert.Equal(t, Closed, e.BreakerFor("tool:read").CurrentState(),
		"input mistakes must not open the dependency's circuit")

	calls := 0
	err := e.Call(context.Background(), "tool:read", func(context.Context) error {
		calls++
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "a valid call must still reach the dependency")
}

func TestCallPermanentProbeClosesHalfOpenCircuit(t *testing.T) {
	e := newTestExecutor(1, 1)
	b := e.BreakerFor("svc")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	_ = e.Call(context.Background(), "svc", func(context.Context) error {
		return errors.New("connection refused")
	}, nil)
	require.Equal(t, Open, b.CurrentState())

	// The half-open probe comes back with an input rejection: the
	// dependency is reachable, so the circuit closes instead of wedging.
	now = now.Add(2 * time.Minute)
	err := e.Call(context.Background(), "svc", func(context.Context) error {
		return Permanent(errors.New("path not allowed"))
	}, nil)
	require.Error(t, err)
	assert.Equal(t, Closed, b.CurrentState())
}

func TestCallExhaustionReturnsTypedError(t *testing.T) {
	e := newTestExecutor(3, 10)

	cause := errors.New("504 gateway timeout")
	err := e.Call(context.Background(), "upstream", func(context.Context) error {
		return cause
	}, nil)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "upstream", callErr.Dependency)
	assert.Equal(t, 3, callErr.Attempts)
	assert.ErrorIs(t, err, cause)
}

func TestCallShortCircuitsWhenOpen(t *testing.T) {
	e := newTestExecutor(1, 2)

	fail := func(context.Context) error { return errors.New("connection reset") }
	_ = e.Call(context.Background(), "dead", fail, nil)
	_ = e.Call(context.Background(), "dead", fail, nil)
	require.Equal(t, Open, e.BreakerFor("dead").CurrentState())

	// The next call must fail fast without invoking the work.
	invoked := false
	err := e.Call(context.Background(), "dead", func(context.Context) error {
		invoked = true
		return nil
	}, nil)

	assert.False(t, invoked, "open circuit must not invoke the work")
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "dead", openErr.Dependency)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCallFallbackOnOpenCircuit(t *testing.T) {
	e := newTestExecutor(1, 1)

	_ = e.Call(context.Background(), "primary", func(context.Context) error {
		return errors.New("connection refused")
	}, nil)
	require.Equal(t, Open, e.BreakerFor("primary").CurrentState())

	primaryCalls, fallbackCalls := 0, 0
	err := e.Call(context.Background(), "primary",
		func(context.Context) error { primaryCalls++; return nil },
		func(context.Context) error { fallbackCalls++; return nil },
	)

	require.NoError(t, err)
	assert.Equal(t, 0, primaryCalls, "primary must not be attempted while open")
	assert.Equal(t, 1, fallbackCalls)
}

func TestCallFallbackOnExhaustedRetries(t *testing.T) {
	e := newTestExecutor(2, 10)

	fallbackCalls := 0
	err := e.Call(context.Background(), "upstream",
		func(context.Context) error { return errors.New("503 unavailable") },
		func(context.Context) error { fallbackCalls++; return nil },
	)

	require.NoError(t, err)
	assert.Equal(t, 1, fallbackCalls)
}

func TestCallFallbackFailureKeepsPrimaryError(t *testing.T) {
	e := newTestExecutor(1, 10)

	err := e.Call(context.Background(), "upstream",
		func(context.Context) error { return errors.New("502 bad gateway") },
		func(context.Context) error { return errors.New("fallback down too") },
	)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Contains(t, err.Error(), "fallback also failed")
}

func TestCallHonorsCancellation(t *testing.T) {
	e := newTestExecutor(5, 10)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := e.Call(ctx, "slow", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancelled call must not be retried")
}

func TestDoReturnsTypedResult(t *testing.T) {
	e := newTestExecutor(3, 10)

	calls := 0
	got, err := Do(context.Background(), e, "weather", func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("timeout")
		}
		return "sunny", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "sunny", got)
}

func TestDoFallbackValue(t *testing.T) {
	e := newTestExecutor(1, 10)

	got, err := Do(context.Background(), e, "llm",
		func(context.Context) (string, error) { return "", errors.New("500 internal") },
		func(context.Context) (string, error) { return "from-fallback", nil },
	)

	require.NoError(t, err)
	assert.Equal(t, "from-fallback", got)
}
