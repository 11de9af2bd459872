package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"lumina/pkg/safety"
)

func TestGrepSearchFindsMatches(t *testing.T) {
	fs := testFs(t, map[string]string{
		testRoot + "/main.go":             "package main\n\nfunc main() {}\n",
		testRoot + "/src/handler.go":      "package src\n\nfunc Handler() {}\n",
		testRoot + "/node_modules/x/y.go": "func Handler() {}\n",
		testRoot + "/.hidden/secret.go":   "func Handler() {}\n",
		testRoot + "/docs/readme.md":      "the Handler function\n",
	})
	tool := NewGrepSearchTool(fs, testRoot)

	res, err := tool.Exec(context.Background(), map[string]any{"query": "func Handler"})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	out := decodeResult(t, res)
	matches := out["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("matches = %v, want only src/handler.go", matches)
	}
	got := matches[0].(string)
	if !strings.HasPrefix(got, "src/handler.go:3:") {
		t.Errorf("match = %q, want src/handler.go with line number", got)
	}
}

func TestGrepSearchExtensionFilter(t *testing.T) {
	fs := testFs(t, map[string]string{
		testRoot + "/a.go": "needle\n",
		testRoot + "/b.md": "needle\n",
	})
	tool := NewGrepSearchTool(fs, testRoot)

	res, err := tool.Exec(context.Background(), map[string]any{
		"query": "needle", "extensions": []any{".md"},
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	out := decodeResult(t, res)
	matches := out["matches"].([]any)
	if len(matches) != 1 || !strings.HasPrefix(matches[0].(string), "b.md:") {
		t.Errorf("extension filter not applied: %v", matches)
	}
}

func TestGrepSearchCaseInsensitive(t *testing.T) {
	fs := testFs(t, map[string]string{
		testRoot + "/a.txt": "NEEDLE\n",
	})
	tool := NewGrepSearchTool(fs, testRoot)

	res, err := tool.Exec(context.Background(), map[string]any{
		"query": "needle", "case_sensitive": false,
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	out := decodeResult(t, res)
	if out["count"].(float64) != 1 {
		t.Errorf("case-insensitive search missed the match: %v", out)
	}
}

func TestGrepSearchMaxResults(t *testing.T) {
	fs := testFs(t, map[string]string{
		testRoot + "/a.txt": "hit\nhit\nhit\nhit\n",
	})
	tool := NewGrepSearchTool(fs, testRoot)

	res, err := tool.Exec(context.Background(), map[string]any{
		"query": "hit", "max_results": float64(2),
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	out := decodeResult(t, res)
	if out["count"].(float64) != 2 || out["truncated"] != true {
		t.Errorf("max_results not enforced: %v", out)
	}
}

func TestGrepSearchInvalidRegex(t *testing.T) {
	fs := testFs(t, nil)
	tool := NewGrepSearchTool(fs, testRoot)

	res, err := tool.Exec(context.Background(), map[string]any{"query": "[unclosed"})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	out := decodeResult(t, res)
	if out["success"] != false {
		t.Errorf("invalid pattern must fail inside the result: %v", out)
	}
}

func TestGrepSearchRejectsEscape(t *testing.T) {
	tool := NewGrepSearchTool(afero.NewMemMapFs(), testRoot)

	_, err := tool.Exec(context.Background(), map[string]any{
		"query": "root", "path": "../../etc",
	})
	var violation *safety.PathViolation
	if !errors.As(err, &violation) {
		t.Fatalf("want PathViolation, got %v", err)
	}
}

func TestReplaceInFileLiteral(t *testing.T) {
	fs := testFs(t, map[string]string{
		testRoot + "/cfg.yaml": "port: 8080\nhost: localhost\nport: 8080\n",
	})
	tool := NewReplaceInFileTool(fs, testRoot)

	res, err := tool.Exec(context.Background(), map[string]any{
		"path": "cfg.yaml", "find": "8080", "replace": "9090",
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	out := decodeResult(t, res)
	if out["changes"].(float64) != 2 {
		t.Errorf("changes = %v, want 2", out["changes"])
	}

	data, _ := afero.ReadFile(fs, testRoot+"/cfg.yaml")
	if strings.Contains(string(data), "8080") || !strings.Contains(string(data), "9090") {
		t.Errorf("replacement not applied: %q", data)
	}
}

func TestReplaceInFileRegex(t *testing.T) {
	fs := testFs(t, map[string]string{
		testRoot + "/notes.txt": "v1.2 and v3.4\n",
	})
	tool := NewReplaceInFileTool(fs, testRoot)

	res, err := tool.Exec(context.Background(), map[string]any{
		"path": "notes.txt", "find": `v\d+\.\d+`, "replace": "vNEXT", "use_regex": true,
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	out := decodeResult(t, res)
	if out["changes"].(float64) != 2 {
		t.Errorf("changes = %v, want 2", out["changes"])
	}

	data, _ := afero.ReadFile(fs, testRoot+"/notes.txt")
	if string(data) != "vNEXT and vNEXT\n" {
		t.Errorf("regex replacement wrong: %q", data)
	}
}

func TestReplaceInFileNoMatchesLeavesFileAlone(t *testing.T) {
	fs := testFs(t, map[string]string{
		testRoot + "/a.txt": "untouched\n",
	})
	tool := NewReplaceInFileTool(fs, testRoot)

	res, err := tool.Exec(context.Background(), map[string]any{
		"path": "a.txt", "find": "absent", "replace": "x",
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	out := decodeResult(t, res)
	if out["changes"].(float64) != 0 {
		t.Errorf("changes = %v, want 0", out["changes"])
	}

	data, _ := afero.ReadFile(fs, testRoot+"/a.txt")
	if string(data) != "untouched\n" {
		t.Errorf("file mutated without matches: %q", data)
	}
}

func TestReplaceInFileInvalidRegex(t *testing.T) {
	fs := testFs(t, map[string]string{
		testRoot + "/a.txt": "content\n",
	})
	tool := NewReplaceInFileTool(fs, testRoot)

	res, err := tool.Exec(context.Background(), map[string]any{
		"path": "a.txt", "find": "[unclosed", "replace": "x", "use_regex": true,
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	out := decodeResult(t, res)
	if out["success"] != false {
		t.Errorf("invalid pattern must fail inside the result: %v", out)
	}
}

func TestReplaceInFileRequiresApproval(t *testing.T) {
	tool := NewReplaceInFileTool(afero.NewMemMapFs(), testRoot)
	if !tool.Definition().RequiresApproval {
		t.Error("replace_in_file must be approval-gated")
	}
}

func TestReplaceInFileRejectsEscape(t *testing.T) {
	tool := NewReplaceInFileTool(afero.NewMemMapFs(), testRoot)

	_, err := tool.Exec(context.Background(), map[string]any{
		"path": "../../etc/passwd", "find": "root", "replace": "x",
	})
	var violation *safety.PathViolation
	if !errors.As(err, &violation) {
		t.Fatalf("want PathViolation, got %v", err)
	}
}
