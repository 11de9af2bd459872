package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	events := []Event{
		{Kind: KindToolExecution, ThreadID: "t1", Tool: "read_file", Status: "success"},
		{Kind: KindSafetyViolation, ThreadID: "t1", Tool: "shell", Detail: "denied pattern"},
	}
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	path := filepath.Join(dir, "audit-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	if lines[0].ID == "" || lines[0].Timestamp.IsZero() {
		t.Error("id and timestamp must be filled in")
	}
	if lines[1].Kind != KindSafetyViolation {
		t.Errorf("event order lost: %+v", lines[1])
	}
}

func TestWriterCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("audit directory not created: %v", err)
	}
}
