package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"lumina/pkg/safety"
)

// ReplaceInFileTool performs a targeted find-and-replace inside one
// workspace file. It mutates content, so every call is approval-gated.
type ReplaceInFileTool struct {
	fs   afero.Fs
	root string
}

// NewReplaceInFileTool creates a replace_in_file tool bounded to root.
func NewReplaceInFileTool(fs afero.Fs, root string) *ReplaceInFileTool {
	return &ReplaceInFileTool{fs: fs, root: root}
}

// Name returns the tool name.
func (t *ReplaceInFileTool) Name() string {
	return ToolReplaceInFile
}

// Definition returns the model-facing definition.
func (t *ReplaceInFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReplaceInFile,
		Description: "Replace occurrences of a string or regex pattern in a workspace file. Use this for targeted edits instead of rewriting whole files.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Path to the file, relative to the workspace root",
				},
				"find": {
					Type:        "string",
					Description: "The text or regex pattern to replace",
				},
				"replace": {
					Type:        "string",
					Description: "The replacement text. An empty string deletes the matches.",
				},
				"use_regex": {
					Type:        "boolean",
					Description: "Treat find as a regex pattern. Defaults to false (literal match).",
				},
			},
			Required: []string{"path", "find"},
		},
		RequiresApproval: true,
	}
}

// Exec implements Tool.
func (t *ReplaceInFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	find, err := stringArg(args, "find")
	if err != nil {
		return nil, err
	}
	replace, _ := args["replace"].(string)

	resolved, err := safety.ValidatePath(path, t.root)
	if err != nil {
		return nil, err
	}

	raw, err := afero.ReadFile(t.fs, resolved)
	if err != nil {
		return errorResult(fmt.Sprintf("file not found or not readable: %s", path))
	}
	original := string(raw)

	var updated string
	var changes int
	if boolArgOrDefault(args, "use_regex", false) {
		pattern, err := regexp.Compile(find)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid regex pattern %q: %v", find, err))
		}
		changes = len(pattern.FindAllStringIndex(original, -1))
		updated = pattern.ReplaceAllString(original, replace)
	} else {
		changes = strings.Count(original, find)
		updated = strings.ReplaceAll(original, find, replace)
	}

	if changes == 0 {
		return jsonResult(map[string]any{
			"path":    path,
			"changes": 0,
			"message": "no matches found, file unchanged",
		})
	}

	if err := afero.WriteFile(t.fs, resolved, []byte(updated), 0o644); err != nil {
		return errorResult(fmt.Sprintf("write %s: %v", path, err))
	}

	return jsonResult(map[string]any{
		"path":    path,
		"changes": changes,
	})
}
