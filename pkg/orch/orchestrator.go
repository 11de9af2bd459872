// Package orch drives the plan/route/execute/reflect loop for one message:
// it routes the task to a sub-agent, calls the reasoning provider through
// the resilience layer, fans requested tool calls out to the executor, and
// checkpoints the thread after every state transition so a crash resumes
// instead of restarting.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"lumina/pkg/agents"
	"lumina/pkg/checkpoint"
	"lumina/pkg/config"
	"lumina/pkg/contextmgr"
	"lumina/pkg/llm"
	"lumina/pkg/logx"
	"lumina/pkg/metrics"
	"lumina/pkg/resilience"
	"lumina/pkg/tools"
)

// Scratch-state keys persisted inside the checkpoint.
const (
	scratchState = "state"
	scratchAgent = "agent"
)

// Result is what every entry point returns. A Result is produced even when
// the run fails; the caller always has something to show the user.
type Result struct {
	ThreadID string
	State    State
	Answer   string
	Steps    int
	Approval *checkpoint.PendingApproval
}

// Orchestrator owns the task-execution loop for all threads.
type Orchestrator struct {
	cfg      *config.Config
	store    checkpoint.Store
	executor *tools.Executor
	router   *agents.Router
	ctxmgr   *contextmgr.Manager
	primary  llm.Client
	fallback llm.Client
	res      *resilience.Executor
	recorder *metrics.Recorder
	logger   *logx.Logger
}

// New wires an orchestrator. fallback may be nil; provider failover is then
// disabled and exhausted retries surface directly.
func New(cfg *config.Config, store checkpoint.Store, executor *tools.Executor, router *agents.Router, cm *contextmgr.Manager, primary, fallback llm.Client, res *resilience.Executor, recorder *metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		executor: executor,
		router:   router,
		ctxmgr:   cm,
		primary:  primary,
		fallback: fallback,
		res:      res,
		recorder: recorder,
		logger:   logx.NewLogger("orch"),
	}
}

// HandleMessage appends a user message to the thread and runs the loop to a
// terminal or waiting state. A thread with a pending approval refuses new
// messages until the approval is resolved.
func (o *Orchestrator) HandleMessage(ctx context.Context, threadID, text string) (*Result, error) {
	cp, err := o.loadOrCreate(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp.PendingApproval != nil {
		return &Result{
			ThreadID: threadID,
			State:    StateAwaitingApproval,
			Answer:   "A tool call is waiting for approval; resolve it before sending new messages.",
			Approval: cp.PendingApproval,
		}, nil
	}

	o.setState(cp, StateRouting)
	agent := o.router.Route(text)
	o.logger.Info("thread %s routed to %s", threadID, agent.Name())

	cp.Turns = append(cp.Turns, checkpoint.Turn{
		ID:        ulid.Make().String(),
		Role:      checkpoint.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	o.setState(cp, StatePlanning)
	cp.ScratchState[scratchAgent] = agent.Name()
	if err := o.save(ctx, cp); err != nil {
		return nil, err
	}

	return o.runLoop(ctx, cp, agent)
}

// ResolveApproval resolves the thread's pending approval and resumes the
// loop. A rejected call is surfaced to the model as a denied tool result so
// it can plan around the refusal.
func (o *Orchestrator) ResolveApproval(ctx context.Context, threadID, approvalID string, approve bool) (*Result, error) {
	cp, err := o.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	cp = cp.Clone()
	pending := cp.PendingApproval
	if pending == nil {
		return nil, fmt.Errorf("thread %s has no pending approval", threadID)
	}
	if pending.ID != approvalID {
		return nil, fmt.Errorf("approval %s not found on thread %s (pending is %s)", approvalID, threadID, pending.ID)
	}

	agent := o.agentFor(cp)
	cp.PendingApproval = nil

	record := checkpoint.ToolCallRecord{
		ID:        pending.ID,
		Name:      pending.ToolName,
		Arguments: pending.Arguments,
	}
	if approve {
		o.setState(cp, StateExecuting)
		out := o.executor.Execute(ctx, threadID, tools.Call{
			ID:   pending.ID,
			Name: pending.ToolName,
			Args: pending.Arguments,
		}, true)
		record.Status = out.Status
		record.Result = out.Result
		o.setState(cp, StateReflecting)
	} else {
		record.Status = "rejected"
		record.Result = `{"success":false,"error":"the user denied this tool call"}`
	}

	cp.Turns = append(cp.Turns, checkpoint.Turn{
		ID:        ulid.Make().String(),
		Role:      checkpoint.RoleTool,
		ToolCalls: []checkpoint.ToolCallRecord{record},
		Timestamp: time.Now().UTC(),
	})
	o.setState(cp, StatePlanning)
	if err := o.save(ctx, cp); err != nil {
		return nil, err
	}

	return o.runLoop(ctx, cp, agent)
}

// runLoop drives the thread until it finishes, fails, stops for approval,
// or hits the step ceiling.
func (o *Orchestrator) runLoop(ctx context.Context, cp *checkpoint.Checkpoint, agent *agents.Agent) (*Result, error) {
	maxSteps := o.cfg.Orchestrator.MaxSteps
	defs := o.executor.Registry().Definitions(agent.ToolNames())

	for step := 1; step <= maxSteps; step++ {
		transcript := o.ctxmgr.BuildTranscript(agent.SystemPrompt(), cp.Turns)
		resp, err := o.complete(ctx, llm.Request{
			Messages:    transcript,
			Tools:       defs,
			MaxTokens:   o.cfg.Providers.MaxTokens,
			Temperature: o.cfg.Providers.Temperature,
		})
		if err != nil {
			return o.fail(ctx, cp, step, fmt.Errorf("reasoning provider unavailable: %w", err))
		}

		if len(resp.ToolCalls) == 0 {
			cp.Turns = append(cp.Turns, checkpoint.Turn{
				ID:        ulid.Make().String(),
				Role:      checkpoint.RoleAssistant,
				Content:   resp.Content,
				Timestamp: time.Now().UTC(),
			})
			o.setState(cp, StateDone)
			if err := o.save(ctx, cp); err != nil {
				return nil, err
			}
			return &Result{
				ThreadID: cp.ThreadID,
				State:    StateDone,
				Answer:   resp.Content,
				Steps:    step,
			}, nil
		}

		// The model asked for tools: record the request, then execute.
		requested := make([]checkpoint.ToolCallRecord, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			requested = append(requested, checkpoint.ToolCallRecord{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
				Status:    "pending",
			})
		}
		cp.Turns = append(cp.Turns, checkpoint.Turn{
			ID:        ulid.Make().String(),
			Role:      checkpoint.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: requested,
			Timestamp: time.Now().UTC(),
		})
		o.setState(cp, StateExecuting)
		if err := o.save(ctx, cp); err != nil {
			return nil, err
		}

		outcomes := o.runCalls(ctx, cp.ThreadID, resp.ToolCalls)

		records := make([]checkpoint.ToolCallRecord, 0, len(outcomes))
		var needsApproval *tools.Outcome
		for i := range outcomes {
			out := &outcomes[i]
			if out.Status == tools.StatusApprovalRequired && needsApproval == nil {
				needsApproval = out
				continue
			}
			record := checkpoint.ToolCallRecord{
				ID:        out.CallID,
				Name:      out.Tool,
				Status:    out.Status,
				Result:    out.Result,
				Arguments: argsFor(resp.ToolCalls, out.CallID),
			}
			records = append(records, record)
		}
		if len(records) > 0 {
			cp.Turns = append(cp.Turns, checkpoint.Turn{
				ID:        ulid.Make().String(),
				Role:      checkpoint.RoleTool,
				ToolCalls: records,
				Timestamp: time.Now().UTC(),
			})
		}

		if needsApproval != nil {
			approval := &checkpoint.PendingApproval{
				ID:          uuid.NewString(),
				ToolName:    needsApproval.Tool,
				Arguments:   argsFor(resp.ToolCalls, needsApproval.CallID),
				Reason:      needsApproval.Reason,
				RequestedAt: time.Now().UTC(),
			}
			cp.PendingApproval = approval
			o.setState(cp, StateAwaitingApproval)
			if err := o.save(ctx, cp); err != nil {
				return nil, err
			}
			return &Result{
				ThreadID: cp.ThreadID,
				State:    StateAwaitingApproval,
				Answer:   fmt.Sprintf("Tool %s needs approval before it can run: %s", approval.ToolName, approval.Reason),
				Steps:    step,
				Approval: approval,
			}, nil
		}

		o.setState(cp, StateReflecting)
		o.setState(cp, StatePlanning)
		if err := o.save(ctx, cp); err != nil {
			return nil, err
		}
	}

	result, err := o.fail(ctx, cp, maxSteps, nil)
	if result == nil {
		return nil, err
	}
	return result, &MaxStepsError{ThreadID: cp.ThreadID, Steps: maxSteps}
}

// fail moves the thread to StateFailed and still produces an answer from
// whatever progress exists.
func (o *Orchestrator) fail(ctx context.Context, cp *checkpoint.Checkpoint, steps int, cause error) (*Result, error) {
	answer := "I could not complete the task"
	if cause != nil {
		answer += ": " + cause.Error()
	} else {
		answer += fmt.Sprintf(": the step limit of %d was reached. Progress so far is saved on this thread.", steps)
	}
	cp.Turns = append(cp.Turns, checkpoint.Turn{
		ID:        ulid.Make().String(),
		Role:      checkpoint.RoleAssistant,
		Content:   answer,
		Timestamp: time.Now().UTC(),
	})
	o.setState(cp, StateFailed)
	// The terminal checkpoint must land even when the caller's context is
	// already cancelled, or the failure answer is lost with it.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.save(saveCtx, cp); err != nil {
		return nil, err
	}
	return &Result{
		ThreadID: cp.ThreadID,
		State:    StateFailed,
		Answer:   answer,
		Steps:    steps,
	}, cause
}

// runCalls executes a batch of tool calls concurrently, preserving request
// order in the returned outcomes.
func (o *Orchestrator) runCalls(ctx context.Context, threadID string, calls []llm.ToolCall) []tools.Outcome {
	outcomes := make([]tools.Outcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			outcomes[i] = o.executor.Execute(ctx, threadID, tools.Call{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Arguments,
			}, false)
		}(i, call)
	}
	wg.Wait()
	return outcomes
}

// complete calls the primary provider through the resilience layer, falling
// back to the secondary provider when the primary's circuit is open or its
// retries are exhausted.
func (o *Orchestrator) complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	work := func(ctx context.Context) (llm.Response, error) {
		start := time.Now()
		resp, err := o.primary.Complete(ctx, req)
		o.recorder.ObserveLLMRequest("primary", o.primary.ModelName(), err, time.Since(start))
		return resp, err
	}
	var fallback func(ctx context.Context) (llm.Response, error)
	if o.fallback != nil {
		fallback = func(ctx context.Context) (llm.Response, error) {
			start := time.Now()
			resp, err := o.fallback.Complete(ctx, req)
			o.recorder.ObserveLLMRequest("fallback", o.fallback.ModelName(), err, time.Since(start))
			return resp, err
		}
	}
	return resilience.Do(ctx, o.res, "llm:primary", work, fallback)
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	cp, err := o.store.Load(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return &checkpoint.Checkpoint{
			ThreadID:     threadID,
			ScratchState: map[string]any{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	cp = cp.Clone()
	if cp.ScratchState == nil {
		cp.ScratchState = map[string]any{}
	}
	return cp, nil
}

// setState records a transition in scratch state. A fresh thread, a thread
// resting in a terminal state, and a self-transition all start clean; any
// other off-table transition is a bug that logs loudly but still proceeds
// so a wedged thread can be driven to a terminal state.
func (o *Orchestrator) setState(cp *checkpoint.Checkpoint, to State) {
	raw, _ := cp.ScratchState[scratchState].(string)
	from := State(raw)
	if from != "" && !from.Terminal() && from != to && !canTransition(from, to) {
		o.logger.Error("invalid transition %s -> %s on thread %s", from, to, cp.ThreadID)
	}
	cp.ScratchState[scratchState] = string(to)
}

func (o *Orchestrator) save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	cp.Version++
	if err := o.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("checkpoint thread %s: %w", cp.ThreadID, err)
	}
	return nil
}

// agentFor restores the routed agent from scratch state, defaulting to the
// planner when the name is missing or stale.
func (o *Orchestrator) agentFor(cp *checkpoint.Checkpoint) *agents.Agent {
	name, _ := cp.ScratchState[scratchAgent].(string)
	for _, agent := range o.router.Agents() {
		if agent.Name() == name {
			return agent
		}
	}
	return o.router.Route(lastUserContent(cp))
}

func lastUserContent(cp *checkpoint.Checkpoint) string {
	for i := len(cp.Turns) - 1; i >= 0; i-- {
		if cp.Turns[i].Role == checkpoint.RoleUser {
			return cp.Turns[i].Content
		}
	}
	return ""
}

func argsFor(calls []llm.ToolCall, id string) map[string]any {
	for _, call := range calls {
		if call.ID == id {
			return call.Arguments
		}
	}
	return nil
}
