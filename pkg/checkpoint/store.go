package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lumina/pkg/metrics"
)

// ErrNotFound is returned by Load for a thread with no checkpoint yet.
var ErrNotFound = errors.New("checkpoint not found")

// ErrVersionConflict is returned by Save when the incoming version is not
// exactly the stored version + 1. The caller must reload and retry the
// whole turn; this rejection is what keeps two workers off the same thread.
var ErrVersionConflict = errors.New("checkpoint version conflict")

// Store is the persistence contract. Backend selection (redis vs sqlite) is
// a startup-time configuration choice; an unreachable configured backend
// fails loudly rather than silently degrading into another one.
type Store interface {
	// Load returns the latest checkpoint for threadID or ErrNotFound.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
	// Save atomically persists cp. The write is accepted when cp.Version
	// is stored+1, accepted as an idempotent no-op when cp.Version equals
	// the stored version, and rejected with ErrVersionConflict otherwise.
	Save(ctx context.Context, cp *Checkpoint) error
}

// validateSave applies the shared version and append-only rules given the
// currently stored version and turn ids. storedVersion 0 means no prior
// checkpoint. It returns (true, nil) when the save is an idempotent no-op.
func validateSave(cp *Checkpoint, storedVersion uint64, storedTurnIDs []string) (noop bool, err error) {
	if cp.ThreadID == "" {
		return false, fmt.Errorf("checkpoint thread_id must not be empty")
	}
	if cp.Version == storedVersion && storedVersion != 0 {
		return true, nil
	}
	if cp.Version != storedVersion+1 {
		return false, fmt.Errorf("%w: have %d, got %d (want %d)", ErrVersionConflict, storedVersion, cp.Version, storedVersion+1)
	}
	// History is append-only: the new turn list must extend the stored one.
	if len(cp.Turns) < len(storedTurnIDs) {
		return false, fmt.Errorf("%w: turn history shrank from %d to %d", ErrVersionConflict, len(storedTurnIDs), len(cp.Turns))
	}
	for i, id := range storedTurnIDs {
		if cp.Turns[i].ID != id {
			return false, fmt.Errorf("%w: turn %d rewritten", ErrVersionConflict, i)
		}
	}
	return false, nil
}

func encode(cp *Checkpoint) ([]byte, error) {
	payload, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint %s: %w", cp.ThreadID, err)
	}
	return payload, nil
}

func decode(payload []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

func turnIDs(turns []Turn) []string {
	ids := make([]string, len(turns))
	for i := range turns {
		ids[i] = turns[i].ID
	}
	return ids
}

// instrumented decorates a Store with size/duration observability. Every
// backend constructed through New is wrapped this way.
type instrumented struct {
	inner    Store
	recorder *metrics.Recorder
}

// Instrument wraps store so every load and save emits latency metrics and
// every save reports the serialized checkpoint size.
func Instrument(store Store, recorder *metrics.Recorder) Store {
	if recorder == nil {
		return store
	}
	return &instrumented{inner: store, recorder: recorder}
}

func (s *instrumented) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	start := time.Now()
	cp, err := s.inner.Load(ctx, threadID)
	s.recorder.ObserveCheckpointOp("load", err, time.Since(start))
	return cp, err
}

func (s *instrumented) Save(ctx context.Context, cp *Checkpoint) error {
	start := time.Now()
	err := s.inner.Save(ctx, cp)
	s.recorder.ObserveCheckpointOp("save", err, time.Since(start))
	if err == nil {
		if payload, encErr := encode(cp); encErr == nil {
			s.recorder.SetCheckpointSize(cp.ThreadID, len(payload))
		}
	}
	return err
}
