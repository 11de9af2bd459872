package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"lumina/pkg/safety"
)

const defaultTreeDepth = 3

// TreeViewTool renders a depth-bounded directory tree. Auto-generated
// directories are pruned.
type TreeViewTool struct {
	fs         afero.Fs
	root       string
	maxEntries int
}

// NewTreeViewTool creates a tree_view tool bounded to root.
func NewTreeViewTool(fs afero.Fs, root string) *TreeViewTool {
	return &TreeViewTool{fs: fs, root: root, maxEntries: 500}
}

// Name returns the tool name.
func (t *TreeViewTool) Name() string {
	return ToolTreeView
}

// Definition returns the model-facing definition.
func (t *TreeViewTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolTreeView,
		Description: "Render a directory tree of the workspace, depth-limited. Auto-generated directories are pruned.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Directory to render, relative to the workspace root. Defaults to the root itself.",
				},
				"depth": {
					Type:        "integer",
					Description: "Maximum depth to descend. Defaults to 3.",
				},
			},
		},
		Idempotent: true,
	}
}

// Exec implements Tool.
func (t *TreeViewTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path := "."
	if raw, ok := args["path"].(string); ok && raw != "" {
		path = raw
	}
	depth := intArgOrDefault(args, "depth", defaultTreeDepth)

	resolved, err := safety.ValidatePath(path, t.root)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(path + "\n")
	count := 0
	truncated := t.render(&b, resolved, "", depth, &count)

	return jsonResult(map[string]any{
		"path":      path,
		"tree":      b.String(),
		"entries":   count,
		"truncated": truncated,
	})
}

func (t *TreeViewTool) render(b *strings.Builder, dir, indent string, depth int, count *int) (truncated bool) {
	if depth <= 0 {
		return false
	}
	infos, err := afero.ReadDir(t.fs, dir)
	if err != nil {
		return false
	}
	for i, info := range infos {
		if *count >= t.maxEntries {
			return true
		}
		rel, relErr := filepath.Rel(t.root, filepath.Join(dir, info.Name()))
		if relErr == nil && safety.IsAutoGeneratedPath(rel) {
			continue
		}
		connector := "├── "
		childIndent := indent + "│   "
		if i == len(infos)-1 {
			connector = "└── "
			childIndent = indent + "    "
		}
		name := info.Name()
		if info.IsDir() {
			name += "/"
		}
		fmt.Fprintf(b, "%s%s%s\n", indent, connector, name)
		*count++
		if info.IsDir() {
			if t.render(b, filepath.Join(dir, info.Name()), childIndent, depth-1, count) {
				return true
			}
		}
	}
	return false
}
