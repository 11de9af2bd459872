package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"lumina/pkg/safety"
)

// ListFilesTool lists the entries of one workspace directory. Auto-generated
// directories (node_modules, .git, build output) are skipped.
type ListFilesTool struct {
	fs   afero.Fs
	root string
}

// NewListFilesTool creates a list_files tool bounded to root.
func NewListFilesTool(fs afero.Fs, root string) *ListFilesTool {
	return &ListFilesTool{fs: fs, root: root}
}

// Name returns the tool name.
func (t *ListFilesTool) Name() string {
	return ToolListFiles
}

// Definition returns the model-facing definition.
func (t *ListFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListFiles,
		Description: "List the entries of a workspace directory. Auto-generated directories like node_modules and .git are skipped.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Directory to list, relative to the workspace root. Defaults to the root itself.",
				},
			},
		},
		Idempotent: true,
	}
}

type fileEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// Exec implements Tool.
func (t *ListFilesTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path := "."
	if raw, ok := args["path"].(string); ok && raw != "" {
		path = raw
	}

	resolved, err := safety.ValidatePath(path, t.root)
	if err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(t.fs, resolved)
	if err != nil {
		return errorResult(fmt.Sprintf("directory not found or not readable: %s", path))
	}

	entries := make([]fileEntry, 0, len(infos))
	for _, info := range infos {
		rel, relErr := filepath.Rel(t.root, filepath.Join(resolved, info.Name()))
		if relErr == nil && safety.IsAutoGeneratedPath(rel) {
			continue
		}
		entry := fileEntry{Name: info.Name(), Type: "file"}
		if info.IsDir() {
			entry.Type = "directory"
		} else {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return jsonResult(map[string]any{
		"path":    path,
		"count":   len(entries),
		"entries": entries,
	})
}
