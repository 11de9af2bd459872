package tools

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"lumina/pkg/resilience"
	"lumina/pkg/toolcache"
)

// fakeTool is a scriptable tool for executor tests.
type fakeTool struct {
	name       string
	idempotent bool
	approval   bool
	execCount  atomic.Int32
	exec       func(ctx context.Context, args map[string]any) (*ExecResult, error)
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:             f.name,
		Description:      "fake",
		InputSchema:      InputSchema{Type: "object"},
		Idempotent:       f.idempotent,
		RequiresApproval: f.approval,
	}
}

func (f *fakeTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	f.execCount.Add(1)
	return f.exec(ctx, args)
}

func newTestExecutor(t *testing.T, tools ...Tool) (*Executor, *toolcache.MemoryCache) {
	t.Helper()
	registry := NewRegistry()
	registry.MustRegister(tools...)
	cache := toolcache.NewMemoryCache()
	ttl := func(string) time.Duration { return time.Minute }
	res := resilience.NewExecutor(
		resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1},
		resilience.DefaultBreakerConfig,
		0, nil,
	)
	return NewExecutor(registry, cache, ttl, res, nil, nil), cache
}

func TestExecuteUnknownToolFailsWithoutRetry(t *testing.T) {
	exec, _ := newTestExecutor(t)
	out := exec.Execute(context.Background(), "t1", Call{ID: "c1", Name: "nope"}, false)
	if out.Status != StatusFailedFatal {
		t.Errorf("status = %s", out.Status)
	}
	if out.Result == "" {
		t.Error("failed outcome must still carry model-readable content")
	}
}

func TestExecuteSuccessCachesIdempotentResult(t *testing.T) {
	tool := &fakeTool{
		name:       "probe",
		idempotent: true,
		exec: func(context.Context, map[string]any) (*ExecResult, error) {
			return &ExecResult{Content: `{"success":true}`}, nil
		},
	}
	exec, _ := newTestExecutor(t, tool)
	ctx := context.Background()
	call := Call{ID: "c1", Name: "probe", Args: map[string]any{"x": 1}}

	first := exec.Execute(ctx, "t1", call, false)
	if first.Status != StatusSuccess {
		t.Fatalf("first status = %s (%v)", first.Status, first.Err)
	}
	second := exec.Execute(ctx, "t1", call, false)
	if second.Status != StatusCached {
		t.Errorf("second status = %s, want cached", second.Status)
	}
	if got := tool.execCount.Load(); got != 1 {
		t.Errorf("tool executed %d times, want 1", got)
	}
	if second.Result != first.Result {
		t.Errorf("cached result differs: %q vs %q", second.Result, first.Result)
	}
}

func TestExecuteDoesNotCacheNonIdempotentTools(t *testing.T) {
	tool := &fakeTool{
		name: "mutate",
		exec: func(context.Context, map[string]any) (*ExecResult, error) {
			return &ExecResult{Content: `{"success":true}`}, nil
		},
	}
	exec, cache := newTestExecutor(t, tool)
	ctx := context.Background()
	call := Call{ID: "c1", Name: "mutate"}

	exec.Execute(ctx, "t1", call, false)
	exec.Execute(ctx, "t1", call, false)
	if got := tool.execCount.Load(); got != 2 {
		t.Errorf("tool executed %d times, want 2", got)
	}
	if cache.Len() != 0 {
		t.Errorf("non-idempotent result cached, %d entries", cache.Len())
	}
}

func TestExecuteDoesNotCacheFailures(t *testing.T) {
	tool := &fakeTool{
		name:       "flaky",
		idempotent: true,
		exec: func(context.Context, map[string]any) (*ExecResult, error) {
			return nil, fmt.Errorf("boom")
		},
	}
	exec, cache := newTestExecutor(t, tool)

	out := exec.Execute(context.Background(), "t1", Call{ID: "c1", Name: "flaky"}, false)
	if out.Status != StatusFailedFatal {
		t.Fatalf("status = %s", out.Status)
	}
	if cache.Len() != 0 {
		t.Errorf("failure cached, %d entries", cache.Len())
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	tool := &fakeTool{
		name:       "wobbly",
		idempotent: true,
	}
	tool.exec = func(context.Context, map[string]any) (*ExecResult, error) {
		if tool.execCount.Load() < 3 {
			return nil, fmt.Errorf("connection reset")
		}
		return &ExecResult{Content: `{"success":true}`}, nil
	}
	exec, _ := newTestExecutor(t, tool)

	out := exec.Execute(context.Background(), "t1", Call{ID: "c1", Name: "wobbly"}, false)
	if out.Status != StatusSuccess {
		t.Fatalf("status = %s (%v)", out.Status, out.Err)
	}
	if got := tool.execCount.Load(); got != 3 {
		t.Errorf("executed %d times, want 3", got)
	}
}

func TestExecuteTransientExhaustionMarkedRetryable(t *testing.T) {
	tool := &fakeTool{
		name:       "upstream",
		idempotent: true,
		exec: func(context.Context, map[string]any) (*ExecResult, error) {
			return nil, fmt.Errorf("connection reset")
		},
	}
	exec, _ := newTestExecutor(t, tool)

	out := exec.Execute(context.Background(), "t1", Call{ID: "c1", Name: "upstream"}, false)
	if out.Status != StatusFailedRetryable {
		t.Errorf("status = %s, want failed_retryable", out.Status)
	}
	if got := tool.execCount.Load(); got != 3 {
		t.Errorf("executed %d times, want 3", got)
	}
}

func TestRejectionsDoNotOpenToolCircuit(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/workspace/ok.txt", []byte("fine"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	exec, _ := newTestExecutor(t, NewReadFileTool(fs, "/workspace"))
	ctx := context.Background()

	// More bad paths than the breaker threshold allows failures.
	for i := 0; i < 5; i++ {
		out := exec.Execute(ctx, "t1", Call{
			ID: fmt.Sprintf("c%d", i), Name: ToolReadFile,
			Args: map[string]any{"path": "../../etc/passwd"},
		}, false)
		if out.Status != StatusRejected {
			t.Fatalf("call %d status = %s, want rejected", i, out.Status)
		}
	}

	out := exec.Execute(ctx, "t1", Call{
		ID: "ok", Name: ToolReadFile,
		Args: map[string]any{"path": "ok.txt"},
	}, false)
	if out.Status != StatusSuccess {
		t.Fatalf("valid read after rejections: status = %s (%v)", out.Status, out.Err)
	}
}

func TestExecuteApprovalGate(t *testing.T) {
	tool := &fakeTool{
		name:     "dangerous",
		approval: true,
		exec: func(context.Context, map[string]any) (*ExecResult, error) {
			return &ExecResult{Content: `{"success":true}`}, nil
		},
	}
	exec, _ := newTestExecutor(t, tool)
	ctx := context.Background()
	call := Call{ID: "c1", Name: "dangerous"}

	pending := exec.Execute(ctx, "t1", call, false)
	if pending.Status != StatusApprovalRequired {
		t.Fatalf("status = %s, want approval_required", pending.Status)
	}
	if got := tool.execCount.Load(); got != 0 {
		t.Fatalf("tool ran %d times before approval", got)
	}

	approved := exec.Execute(ctx, "t1", call, true)
	if approved.Status != StatusSuccess {
		t.Errorf("approved status = %s (%v)", approved.Status, approved.Err)
	}
	if got := tool.execCount.Load(); got != 1 {
		t.Errorf("tool executed %d times after approval, want 1", got)
	}
}

func TestShellNeedsApprovalOnlyForUnsafeCommands(t *testing.T) {
	shell := NewShellTool("/workspace",
		[]string{"ls", "git", "npm"},
		[]string{"ls"},
		time.Second)

	if needs, _ := shell.NeedsApproval(map[string]any{"command": "ls -la"}); needs {
		t.Error("safe command must not need approval")
	}
	if needs, _ := shell.NeedsApproval(map[string]any{"command": "npm install"}); !needs {
		t.Error("unsafe command must need approval")
	}
	// Invalid commands skip the approval queue and die at execution.
	if needs, _ := shell.NeedsApproval(map[string]any{"command": "ls; rm -rf /"}); needs {
		t.Error("invalid command must not enter the approval queue")
	}
}
