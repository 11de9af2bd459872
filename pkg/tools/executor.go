package tools

import (
	"context"
	"errors"
	"time"

	"lumina/pkg/audit"
	"lumina/pkg/logx"
	"lumina/pkg/metrics"
	"lumina/pkg/resilience"
	"lumina/pkg/safety"
	"lumina/pkg/toolcache"
)

// Call is one requested tool invocation, as decoded from a model response.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Outcome statuses reported per call. Failures keep their retryability
// classification so the history and audit trail show whether a later step
// could plausibly succeed.
const (
	StatusSuccess          = "success"
	StatusCached           = "cached"
	StatusRejected         = "rejected"
	StatusApprovalRequired = "approval_required"
	StatusFailedRetryable  = "failed_retryable"
	StatusFailedFatal      = "failed_fatal"
)

// Outcome is the terminal result of one call. Result always carries content
// the model can read, including for rejections and failures.
type Outcome struct {
	CallID string
	Tool   string
	Status string
	Result string
	// Reason is set for approval_required outcomes.
	Reason string
	// Err is the underlying error for failed outcomes.
	Err error
}

// ApprovalGater is implemented by tools whose approval requirement depends
// on the arguments (the shell tool: safe commands skip approval). Tools
// without this interface fall back to the static RequiresApproval flag on
// their definition.
type ApprovalGater interface {
	NeedsApproval(args map[string]any) (needs bool, reason string)
}

// TTLFunc maps a tool name to its cache TTL.
type TTLFunc func(tool string) time.Duration

// Executor runs tool calls through the full pipeline: lookup, approval
// gate, cache probe, resilience-wrapped execution, cache fill, audit.
type Executor struct {
	registry   *Registry
	cache      toolcache.Cache
	ttlFor     TTLFunc
	resilience *resilience.Executor
	recorder   *metrics.Recorder
	auditLog   *audit.Writer
	logger     *logx.Logger
}

// NewExecutor wires an executor. cache, recorder and auditLog may be nil;
// the corresponding concern is then skipped.
func NewExecutor(registry *Registry, cache toolcache.Cache, ttlFor TTLFunc, res *resilience.Executor, recorder *metrics.Recorder, auditLog *audit.Writer) *Executor {
	if ttlFor == nil {
		ttlFor = func(string) time.Duration { return 0 }
	}
	return &Executor{
		registry:   registry,
		cache:      cache,
		ttlFor:     ttlFor,
		resilience: res,
		recorder:   recorder,
		auditLog:   auditLog,
		logger:     logx.NewLogger("tools"),
	}
}

// Registry exposes the underlying registry for definition lookups.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs one call to a terminal outcome. approved marks a call that a
// human has already cleared; without it, approval-gated calls stop at
// StatusApprovalRequired and nothing executes.
func (e *Executor) Execute(ctx context.Context, threadID string, call Call, approved bool) Outcome {
	start := time.Now()
	out := e.execute(ctx, threadID, call, approved)
	e.recorder.ObserveToolInvocation(call.Name, out.Status, time.Since(start))
	e.writeAudit(threadID, call, &out)
	return out
}

func (e *Executor) execute(ctx context.Context, threadID string, call Call, approved bool) Outcome {
	out := Outcome{CallID: call.ID, Tool: call.Name}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		// An unknown tool is a model hallucination, never retried.
		out.Status = StatusFailedFatal
		out.Err = logx.Errorf("unknown tool %q requested on thread %s", call.Name, threadID)
		res, _ := errorResult("unknown tool: " + call.Name)
		if res != nil {
			out.Result = res.Content
		}
		return out
	}
	def := tool.Definition()

	if !approved {
		needs, reason := false, ""
		if gater, ok := tool.(ApprovalGater); ok {
			needs, reason = gater.NeedsApproval(call.Args)
		} else if def.RequiresApproval {
			needs, reason = true, "tool requires human approval"
		}
		if needs {
			out.Status = StatusApprovalRequired
			out.Reason = reason
			return out
		}
	}

	cacheKey := ""
	if e.cache != nil && def.Idempotent {
		cacheKey = toolcache.Key(call.Name, call.Args)
		if value, hit := e.cache.Get(ctx, cacheKey); hit {
			e.recorder.IncCacheHit(call.Name)
			out.Status = StatusCached
			out.Result = string(value)
			return out
		}
		e.recorder.IncCacheMiss(call.Name)
	}

	var result *ExecResult
	work := func(ctx context.Context) (*ExecResult, error) {
		res, err := tool.Exec(ctx, call.Args)
		if err != nil && isViolation(err) {
			return nil, resilience.Permanent(err)
		}
		return res, err
	}

	var err error
	if e.resilience != nil {
		result, err = resilience.Do(ctx, e.resilience, "tool:"+call.Name, work, nil)
	} else {
		result, err = work(ctx)
	}

	if err != nil {
		if violation := asViolation(err); violation != nil {
			out.Status = StatusRejected
			out.Err = violation
			res, _ := errorResult(violation.Error())
			if res != nil {
				out.Result = res.Content
			}
			return out
		}
		out.Status = failedStatus(err)
		out.Err = err
		res, _ := errorResult(err.Error())
		if res != nil {
			out.Result = res.Content
		}
		return out
	}

	out.Status = StatusSuccess
	out.Result = result.Content

	if cacheKey != "" {
		if ttl := e.ttlFor(call.Name); ttl > 0 {
			e.cache.Put(ctx, cacheKey, []byte(result.Content), ttl)
		}
	}
	return out
}

func (e *Executor) writeAudit(threadID string, call Call, out *Outcome) {
	if e.auditLog == nil {
		return
	}
	kind := audit.KindToolExecution
	detail := ""
	if out.Status == StatusRejected {
		kind = audit.KindSafetyViolation
		detail = out.Err.Error()
	} else if out.Err != nil {
		detail = out.Err.Error()
	}
	ev := audit.Event{
		Kind:      kind,
		ThreadID:  threadID,
		Tool:      call.Name,
		Status:    out.Status,
		Detail:    detail,
		Arguments: call.Args,
	}
	if err := e.auditLog.Write(ev); err != nil {
		e.logger.Warn("audit write failed: %v", err)
	}
}

// failedStatus classifies a failure: exhausted transient errors and open
// circuits may clear up on a later step, everything else is fatal for this
// call.
func failedStatus(err error) string {
	if resilience.IsPermanent(err) {
		return StatusFailedFatal
	}
	var openErr *resilience.CircuitOpenError
	if errors.As(err, &openErr) {
		return StatusFailedRetryable
	}
	if resilience.IsTransient(err) {
		return StatusFailedRetryable
	}
	return StatusFailedFatal
}

func isViolation(err error) bool {
	return asViolation(err) != nil
}

// asViolation unwraps err to a safety violation if one is present.
func asViolation(err error) error {
	var pathViolation *safety.PathViolation
	if errors.As(err, &pathViolation) {
		return pathViolation
	}
	var cmdViolation *safety.CommandViolation
	if errors.As(err, &cmdViolation) {
		return cmdViolation
	}
	return nil
}
