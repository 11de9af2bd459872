package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"lumina/pkg/safety"
)

// DeleteFileTool removes a single file inside the workspace root. Deletion
// is destructive and always approval-gated; directories are refused.
type DeleteFileTool struct {
	fs   afero.Fs
	root string
}

// NewDeleteFileTool creates a delete_file tool bounded to root.
func NewDeleteFileTool(fs afero.Fs, root string) *DeleteFileTool {
	return &DeleteFileTool{fs: fs, root: root}
}

// Name returns the tool name.
func (t *DeleteFileTool) Name() string {
	return ToolDeleteFile
}

// Definition returns the model-facing definition.
func (t *DeleteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolDeleteFile,
		Description: "Delete a single file from the workspace. Directories cannot be deleted.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Path to the file, relative to the workspace root",
				},
			},
			Required: []string{"path"},
		},
		RequiresApproval: true,
	}
}

// Exec implements Tool.
func (t *DeleteFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}

	resolved, err := safety.ValidatePath(path, t.root)
	if err != nil {
		return nil, err
	}

	info, err := t.fs.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(fmt.Sprintf("file not found: %s", path))
		}
		return errorResult(fmt.Sprintf("stat %s: %v", path, err))
	}
	if info.IsDir() {
		return errorResult(fmt.Sprintf("%s is a directory; only files can be deleted", path))
	}

	if err := t.fs.Remove(resolved); err != nil {
		return errorResult(fmt.Sprintf("delete %s: %v", path, err))
	}
	return jsonResult(map[string]any{"path": path, "deleted": true})
}
