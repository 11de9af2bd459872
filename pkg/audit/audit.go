// Package audit appends structured events to daily rotated JSONL files.
// Every tool outcome and safety rejection lands here so an operator can
// reconstruct what an agent did and why.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds written by the orchestrator.
const (
	KindToolExecution   = "tool_execution"
	KindSafetyViolation = "safety_violation"
	KindApproval        = "approval"
	KindProviderCall    = "provider_call"
)

// Event is one audit record. Fields not relevant to a kind stay empty.
type Event struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	ThreadID  string         `json:"thread_id,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Status    string         `json:"status,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Writer appends events to daily rotated files named audit-YYYY-MM-DD.jsonl.
type Writer struct {
	dir         string
	mu          sync.Mutex
	currentFile *os.File
	currentDate string
}

// NewWriter creates the audit directory if needed and opens today's file.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	w := &Writer{dir: dir}
	if err := w.rotateIfNeeded(time.Now()); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends one event. The event ID and timestamp are filled in when
// absent. Write is safe for concurrent use.
func (w *Writer) Write(ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize audit event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(ev.Timestamp); err != nil {
		return err
	}
	if _, err := w.currentFile.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return w.currentFile.Sync()
}

func (w *Writer) rotateIfNeeded(now time.Time) error {
	date := now.Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == date {
		return nil
	}
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("close audit file: %w", err)
		}
	}
	path := filepath.Join(w.dir, fmt.Sprintf("audit-%s.jsonl", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file %s: %w", path, err)
	}
	w.currentFile = file
	w.currentDate = date
	return nil
}

// Close closes the current audit file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	return err
}
