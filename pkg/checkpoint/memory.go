package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore is the in-process backend. It honors the full Store contract
// (versioning, append-only validation) so tests and single-process setups
// exercise the same semantics as the durable backends.
type MemoryStore struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payloads: make(map[string][]byte)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, threadID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.payloads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return decode(payload)
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var storedVersion uint64
	var storedIDs []string
	if payload, ok := s.payloads[cp.ThreadID]; ok {
		stored, err := decode(payload)
		if err != nil {
			return err
		}
		storedVersion = stored.Version
		storedIDs = turnIDs(stored.Turns)
	}

	noop, err := validateSave(cp, storedVersion, storedIDs)
	if err != nil {
		return err
	}
	if noop {
		return nil
	}

	payload, err := encode(cp)
	if err != nil {
		return err
	}
	s.payloads[cp.ThreadID] = payload
	return nil
}
