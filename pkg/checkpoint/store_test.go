package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testCheckpoint(threadID string, version uint64, turnIDs ...string) *Checkpoint {
	cp := &Checkpoint{
		ThreadID: threadID,
		Version:  version,
	}
	for _, id := range turnIDs {
		cp.Turns = append(cp.Turns, Turn{
			ID:        id,
			Role:      RoleUser,
			Content:   "content of " + id,
			Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return cp
}

// Both backends must satisfy the same contract, so every test runs against
// each of them.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cp := testCheckpoint("t1", 1, "turn-1")
			cp.ScratchState = map[string]any{"plan": "list files"}

			if err := store.Save(ctx, cp); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := store.Load(ctx, "t1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Version != 1 || len(got.Turns) != 1 || got.Turns[0].ID != "turn-1" {
				t.Errorf("round trip mismatch: %+v", got)
			}
			if got.ScratchState["plan"] != "list files" {
				t.Errorf("scratch state lost: %+v", got.ScratchState)
			}
		})
	}
}

func TestLoadUnknownThread(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(context.Background(), "missing")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("want ErrNotFound, got %v", err)
			}
		})
	}
}

func TestSaveSameVersionIsIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, testCheckpoint("t1", 1, "turn-1")); err != nil {
				t.Fatalf("first save: %v", err)
			}
			if err := store.Save(ctx, testCheckpoint("t1", 1, "turn-1")); err != nil {
				t.Fatalf("replayed save must be a no-op, got %v", err)
			}

			got, err := store.Load(ctx, "t1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Version != 1 {
				t.Errorf("version changed by replay: %d", got.Version)
			}
		})
	}
}

func TestSaveStaleVersionRejected(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, testCheckpoint("t1", 1, "turn-1")); err != nil {
				t.Fatalf("save v1: %v", err)
			}
			if err := store.Save(ctx, testCheckpoint("t1", 2, "turn-1", "turn-2")); err != nil {
				t.Fatalf("save v2: %v", err)
			}

			// A worker holding an old snapshot tries to write version 1 again.
			err := store.Save(ctx, testCheckpoint("t1", 1, "turn-1"))
			if !errors.Is(err, ErrVersionConflict) {
				t.Errorf("stale version must be rejected, got %v", err)
			}

			err = store.Save(ctx, testCheckpoint("t1", 4, "turn-1", "turn-2", "turn-3"))
			if !errors.Is(err, ErrVersionConflict) {
				t.Errorf("skipping a version must be rejected, got %v", err)
			}

			// The stored state is untouched by the rejected writes.
			got, err := store.Load(ctx, "t1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Version != 2 || len(got.Turns) != 2 {
				t.Errorf("rejected save mutated stored state: %+v", got)
			}
		})
	}
}

func TestSaveEnforcesAppendOnlyHistory(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, testCheckpoint("t1", 1, "turn-1", "turn-2")); err != nil {
				t.Fatalf("save v1: %v", err)
			}

			// Rewriting an existing turn id is a corruption signal.
			err := store.Save(ctx, testCheckpoint("t1", 2, "turn-1", "turn-X", "turn-3"))
			if !errors.Is(err, ErrVersionConflict) {
				t.Errorf("rewritten turn must be rejected, got %v", err)
			}

			// So is dropping history.
			err = store.Save(ctx, testCheckpoint("t1", 2, "turn-1"))
			if !errors.Is(err, ErrVersionConflict) {
				t.Errorf("shrunk history must be rejected, got %v", err)
			}

			// A pure extension is fine.
			if err := store.Save(ctx, testCheckpoint("t1", 2, "turn-1", "turn-2", "turn-3")); err != nil {
				t.Errorf("appending a turn must be accepted: %v", err)
			}
		})
	}
}

func TestThreadsAreIsolated(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, testCheckpoint("a", 1, "a-1")); err != nil {
				t.Fatalf("save a: %v", err)
			}
			if err := store.Save(ctx, testCheckpoint("b", 1, "b-1")); err != nil {
				t.Fatalf("save b: %v", err)
			}

			got, err := store.Load(ctx, "a")
			if err != nil {
				t.Fatalf("load a: %v", err)
			}
			if got.Turns[0].ID != "a-1" {
				t.Errorf("thread a leaked state: %+v", got.Turns)
			}
		})
	}
}

func TestPendingApprovalSurvivesRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cp := testCheckpoint("t1", 1, "turn-1")
			cp.PendingApproval = &PendingApproval{
				ID:          "ap-1",
				ToolName:    "delete_file",
				Arguments:   map[string]any{"path": "old.txt"},
				Reason:      "destructive operation",
				RequestedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			}
			if err := store.Save(ctx, cp); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := store.Load(ctx, "t1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.PendingApproval == nil || got.PendingApproval.ToolName != "delete_file" {
				t.Errorf("pending approval lost: %+v", got.PendingApproval)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cp := testCheckpoint("t1", 1, "turn-1")
	cp.ScratchState = map[string]any{"k": "v"}

	clone := cp.Clone()
	clone.Turns = append(clone.Turns, Turn{ID: "turn-2", Role: RoleAssistant})
	clone.ScratchState["k"] = "changed"
	clone.Version = 2

	if len(cp.Turns) != 1 {
		t.Errorf("clone aliased the turn slice")
	}
	if cp.ScratchState["k"] != "v" {
		t.Errorf("clone aliased the scratch map")
	}
	if cp.Version != 1 {
		t.Errorf("clone aliased the version")
	}
}
