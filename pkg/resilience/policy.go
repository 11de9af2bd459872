package resilience

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines the retry schedule applied to transient errors.
type RetryConfig struct {
	MaxAttempts   int           // total attempts including the first
	InitialDelay  time.Duration // delay before the first retry
	MaxDelay      time.Duration // cap on the backoff
	BackoffFactor float64       // multiplier per retry
	Jitter        bool          // randomize delays to avoid thundering herds
}

// DefaultRetryConfig provides the documented defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Policy pairs a retry schedule with an error classifier.
type Policy struct {
	Config     RetryConfig
	Classifier Classifier
}

// NewPolicy creates a retry policy. A nil classifier falls back to
// IsTransient.
func NewPolicy(config RetryConfig, classifier Classifier) *Policy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if config.BackoffFactor <= 1 {
		config.BackoffFactor = DefaultRetryConfig.BackoffFactor
	}
	if classifier == nil {
		classifier = IsTransient
	}
	return &Policy{Config: config, Classifier: classifier}
}

// Delay computes the backoff before the given attempt (1-based; attempt 1 is
// the initial call and gets no delay).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}
	if p.Config.Jitter && delay > 0 {
		// +/- 10% jitter.
		jitter := time.Duration((rand.Float64()*0.2 - 0.1) * float64(delay))
		delay += jitter
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}
	return delay
}

// ShouldRetry reports whether err is worth another attempt.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
