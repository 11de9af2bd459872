package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"lumina/pkg/safety"
)

// WriteFileTool creates or overwrites a file inside the workspace root.
// Writes are destructive, so every call is approval-gated.
type WriteFileTool struct {
	fs   afero.Fs
	root string
}

// NewWriteFileTool creates a write_file tool bounded to root.
func NewWriteFileTool(fs afero.Fs, root string) *WriteFileTool {
	return &WriteFileTool{fs: fs, root: root}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string {
	return ToolWriteFile
}

// Definition returns the model-facing definition.
func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Create or overwrite a file in the workspace with the given content. Parent directories are created as needed.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Path to the file, relative to the workspace root",
				},
				"content": {
					Type:        "string",
					Description: "Full content to write",
				},
			},
			Required: []string{"path", "content"},
		},
		RequiresApproval: true,
	}
}

// Exec implements Tool.
func (t *WriteFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content is required and must be a string")
	}

	resolved, err := safety.ValidatePath(path, t.root)
	if err != nil {
		return nil, err
	}

	if err := t.fs.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errorResult(fmt.Sprintf("create parent directory for %s: %v", path, err))
	}
	if err := afero.WriteFile(t.fs, resolved, []byte(content), 0o644); err != nil {
		return errorResult(fmt.Sprintf("write %s: %v", path, err))
	}

	return jsonResult(map[string]any{
		"path":          path,
		"bytes_written": len(content),
	})
}
