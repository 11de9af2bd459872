// Package metrics exposes Prometheus collectors for tool invocations, cache
// traffic, circuit-breaker transitions, checkpoint I/O, and reasoning-provider
// requests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns every collector the orchestrator emits into. Components
// receive it by pointer; a nil *Recorder is a valid no-op sink so unit tests
// don't need to wire a registry.
type Recorder struct {
	toolInvocations    *prometheus.CounterVec
	toolDuration       *prometheus.HistogramVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	circuitTransitions *prometheus.CounterVec
	checkpointOps      *prometheus.HistogramVec
	checkpointSize     *prometheus.GaugeVec
	llmRequests        *prometheus.CounterVec
	llmDuration        *prometheus.HistogramVec
}

// NewRecorder creates a Recorder registered against reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry to
// avoid duplicate-registration panics.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		toolInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocations_total",
				Help: "Total tool invocations by tool name and final status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_invocation_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_cache_hits_total",
				Help: "Tool cache hits by tool name",
			},
			[]string{"tool"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_cache_misses_total",
				Help: "Tool cache misses by tool name",
			},
			[]string{"tool"},
		),
		circuitTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_transitions_total",
				Help: "Circuit breaker state transitions by dependency and new state",
			},
			[]string{"dependency", "state"},
		),
		checkpointOps: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkpoint_op_duration_seconds",
				Help:    "Checkpoint store operation latency by operation and outcome",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "outcome"},
		),
		checkpointSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "checkpoint_size_bytes",
				Help: "Serialized size of the most recently saved checkpoint",
			},
			[]string{"thread_id"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Reasoning-provider requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		llmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of reasoning-provider requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
	}
}

// ObserveToolInvocation records one completed tool invocation.
func (r *Recorder) ObserveToolInvocation(tool, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.toolInvocations.WithLabelValues(tool, status).Inc()
	r.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// IncCacheHit records a tool cache hit.
func (r *Recorder) IncCacheHit(tool string) {
	if r == nil {
		return
	}
	r.cacheHits.WithLabelValues(tool).Inc()
}

// IncCacheMiss records a tool cache miss.
func (r *Recorder) IncCacheMiss(tool string) {
	if r == nil {
		return
	}
	r.cacheMisses.WithLabelValues(tool).Inc()
}

// IncCircuitTransition records a circuit breaker moving to a new state.
func (r *Recorder) IncCircuitTransition(dependency, state string) {
	if r == nil {
		return
	}
	r.circuitTransitions.WithLabelValues(dependency, state).Inc()
}

// ObserveCheckpointOp records latency for a checkpoint load or save.
func (r *Recorder) ObserveCheckpointOp(op string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.checkpointOps.WithLabelValues(op, outcome).Observe(duration.Seconds())
}

// SetCheckpointSize records the serialized size of a saved checkpoint.
func (r *Recorder) SetCheckpointSize(threadID string, bytes int) {
	if r == nil {
		return
	}
	r.checkpointSize.WithLabelValues(threadID).Set(float64(bytes))
}

// ObserveLLMRequest records one reasoning-provider request.
func (r *Recorder) ObserveLLMRequest(provider, model string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.llmRequests.WithLabelValues(provider, model, status).Inc()
	r.llmDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}
