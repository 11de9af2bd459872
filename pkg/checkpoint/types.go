// Package checkpoint persists per-thread conversation state as versioned,
// atomically written snapshots. The version counter doubles as an optimistic
// concurrency token: two workers racing on one thread cannot clobber each
// other because only a write of exactly current+1 is accepted.
package checkpoint

import (
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRecord captures one requested tool invocation and, once resolved,
// its outcome. It is copied into the owning Turn by the orchestrator.
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	Status    string         `json:"status,omitempty"`
}

// Turn is one entry of a thread's history. Turns are immutable once
// appended; the orchestrator only ever extends the list.
type Turn struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// PendingApproval is a human-in-the-loop gate persisted while the thread
// waits for an external decision. Durable so an approval survives restarts.
type PendingApproval struct {
	ID          string         `json:"id"`
	ToolName    string         `json:"tool_name"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Reason      string         `json:"reason"`
	RequestedAt time.Time      `json:"requested_at"`
}

// Checkpoint is the serialized snapshot of a thread written after every
// orchestrator state transition.
type Checkpoint struct {
	ThreadID        string           `json:"thread_id"`
	Version         uint64           `json:"version"`
	Turns           []Turn           `json:"turns"`
	ScratchState    map[string]any   `json:"scratch_state,omitempty"`
	PendingApproval *PendingApproval `json:"pending_approval,omitempty"`
}

// Clone returns a deep-enough copy: the turn slice and scratch map are
// fresh so the caller can extend them without aliasing stored state.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := &Checkpoint{
		ThreadID: c.ThreadID,
		Version:  c.Version,
	}
	out.Turns = make([]Turn, len(c.Turns))
	copy(out.Turns, c.Turns)
	if c.ScratchState != nil {
		out.ScratchState = make(map[string]any, len(c.ScratchState))
		for k, v := range c.ScratchState {
			out.ScratchState[k] = v
		}
	}
	if c.PendingApproval != nil {
		pa := *c.PendingApproval
		out.PendingApproval = &pa
	}
	return out
}
