package resilience

import (
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

const (
	Closed   State = iota // normal operation
	Open                  // failing, reject calls until cooldown elapses
	HalfOpen              // cooldown elapsed, a single probe is in flight
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes when a circuit opens and how long it stays open.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // time to wait before the half-open probe
}

// DefaultBreakerConfig matches the documented defaults: open after 5
// consecutive failures, cool down for 60 seconds.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	Cooldown:         60 * time.Second,
}

// Breaker is a per-dependency circuit breaker. All state mutation happens
// under its mutex; this is the single synchronization point per dependency.
type Breaker struct {
	mu                  sync.Mutex
	config              BreakerConfig
	state               State
	consecutiveFailures int
	openedAt            time.Time
	probing             bool
	onTransition        func(State)
	now                 func() time.Time
}

// NewBreaker creates a closed breaker. onTransition, if non-nil, is invoked
// (outside any hot path, still under the breaker lock) whenever the state
// changes; it feeds the circuit-transition metric.
func NewBreaker(config BreakerConfig, onTransition func(State)) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig.Cooldown
	}
	return &Breaker{
		config:       config,
		state:        Closed,
		onTransition: onTransition,
		now:          time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it returns
// false until the cooldown elapses; then exactly one caller is admitted as
// the half-open probe and everyone else keeps getting false until the probe
// resolves via Record.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return false
		}
		b.setState(HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// Record reports the outcome of an admitted call.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.consecutiveFailures = 0
		if b.state != Closed {
			b.setState(Closed)
		}
		b.probing = false
		return
	}

	b.consecutiveFailures++
	switch b.state {
	case Closed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		// The probe failed: reopen and restart the cooldown.
		b.trip()
	case Open:
		// A straggler from before the trip; nothing to do.
	}
	b.probing = false
}

func (b *Breaker) trip() {
	b.setState(Open)
	b.openedAt = b.now()
}

func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onTransition != nil {
		b.onTransition(s)
	}
}

// CurrentState returns the breaker's state without admitting a call.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed. Used by tests and operator
// tooling.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.probing = false
	b.setState(Closed)
}
