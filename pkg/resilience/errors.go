package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCircuitOpen indicates the circuit breaker rejected the call without
// attempting the work.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError carries the dependency whose circuit rejected a call.
type CircuitOpenError struct {
	Dependency string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("dependency %s: %s", e.Dependency, ErrCircuitOpen)
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// CallError is returned when a wrapped call exhausts its retries. It carries
// the dependency id, the number of attempts made, and the last underlying
// error; nothing is ever silently swallowed.
type CallError struct {
	Dependency string
	Attempts   int
	LastErr    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("dependency %s failed after %d attempt(s): %v", e.Dependency, e.Attempts, e.LastErr)
}

func (e *CallError) Unwrap() error { return e.LastErr }

// permanentError marks an error as never retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the retry loop treats it as a permanent input
// error: it is surfaced immediately without retry and without a fallback.
// Safety violations and invalid arguments are wrapped this way.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Classifier decides whether an error is transient and worth retrying.
type Classifier func(error) bool

// IsTransient is the default classifier. Per-attempt timeouts, connection
// trouble, rate limiting, and 5xx-equivalent responses are transient;
// explicit permanence, cancellation, and 4xx-equivalents are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Attempt timeouts count as failures and are retried.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return false
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return true
	}
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "429") {
		return true
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") {
		return false
	}
	return false
}
