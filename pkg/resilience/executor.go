// Package resilience wraps calls to external dependencies with timeouts,
// classified retries, per-dependency circuit breakers, and optional
// fallbacks. Every component that talks to something that can fail (the
// reasoning provider, tool bodies, the cache, the checkpoint store) goes
// through an Executor.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lumina/pkg/logx"
	"lumina/pkg/metrics"
)

// Work is a unit of work executed under resilience protection. The context
// carries the per-attempt timeout; implementations must honor cancellation.
type Work func(ctx context.Context) error

// Executor applies the retry/circuit-breaker/timeout policy uniformly across
// dependencies. Breakers are created lazily per dependency id and shared by
// every caller; their internal mutex is the single synchronization point for
// circuit state.
type Executor struct {
	policy     *Policy
	breakerCfg BreakerConfig
	timeout    time.Duration
	recorder   *metrics.Recorder
	logger     *logx.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewExecutor creates an Executor. timeout is the default per-attempt
// timeout applied when the caller does not provide a tighter deadline;
// zero disables the implicit timeout.
func NewExecutor(retry RetryConfig, breaker BreakerConfig, timeout time.Duration, recorder *metrics.Recorder) *Executor {
	return &Executor{
		policy:     NewPolicy(retry, nil),
		breakerCfg: breaker,
		timeout:    timeout,
		recorder:   recorder,
		logger:     logx.NewLogger("resilience"),
		breakers:   make(map[string]*Breaker),
	}
}

// BreakerFor returns the shared breaker for a dependency id, creating it on
// first use.
func (e *Executor) BreakerFor(dependencyID string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[dependencyID]; ok {
		return b
	}
	b := NewBreaker(e.breakerCfg, func(s State) {
		e.recorder.IncCircuitTransition(dependencyID, s.String())
		e.logger.Info("circuit %s -> %s", dependencyID, s)
	})
	e.breakers[dependencyID] = b
	return b
}

// Call runs work under the dependency's breaker with retries and the
// per-attempt timeout. fallback, if non-nil, runs only when the circuit is
// open or retries are exhausted; permanent errors bypass both retry and
// fallback. The returned error is always typed: *CircuitOpenError,
// *CallError, a permanent error, or the context's own error.
func (e *Executor) Call(ctx context.Context, dependencyID string, work, fallback Work) error {
	breaker := e.BreakerFor(dependencyID)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= e.policy.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.policy.Delay(attempt)):
			}
		}

		if !breaker.Allow() {
			if lastErr == nil {
				// Rejected before the first attempt even ran.
				return e.runFallback(ctx, fallback, &CircuitOpenError{Dependency: dependencyID})
			}
			break
		}

		attempts++
		err := e.runAttempt(ctx, work)
		if IsPermanent(err) {
			// The dependency answered and rejected the input. That is the
			// caller's mistake, not a dependency failure; the circuit
			// counts it as a healthy response.
			breaker.Record(true)
			return err
		}
		breaker.Record(err == nil)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !e.policy.ShouldRetry(err) {
			break
		}
		e.logger.Debug("dependency %s attempt %d failed: %v", dependencyID, attempt, err)
	}

	return e.runFallback(ctx, fallback, &CallError{
		Dependency: dependencyID,
		Attempts:   attempts,
		LastErr:    lastErr,
	})
}

func (e *Executor) runAttempt(ctx context.Context, work Work) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return work(ctx)
}

func (e *Executor) runFallback(ctx context.Context, fallback Work, primaryErr error) error {
	if fallback == nil {
		return primaryErr
	}
	e.logger.Warn("primary path failed, running fallback: %v", primaryErr)
	if err := fallback(ctx); err != nil {
		return fmt.Errorf("%w (fallback also failed: %v)", primaryErr, err)
	}
	return nil
}

// Do runs a value-returning unit of work through the executor. It exists so
// callers keep typed results without hand-rolling the capture closure.
func Do[T any](ctx context.Context, e *Executor, dependencyID string, work func(ctx context.Context) (T, error), fallback func(ctx context.Context) (T, error)) (T, error) {
	var result T
	wrapped := func(ctx context.Context) error {
		v, err := work(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}
	var wrappedFallback Work
	if fallback != nil {
		wrappedFallback = func(ctx context.Context) error {
			v, err := fallback(ctx)
			if err != nil {
				return err
			}
			result = v
			return nil
		}
	}
	err := e.Call(ctx, dependencyID, wrapped, wrappedFallback)
	return result, err
}
