package tools

import (
	"bufio"
	"context"
	"fmt"

	"github.com/spf13/afero"

	"lumina/pkg/safety"
)

const (
	defaultReadLines   = 2000
	maxLineLength      = 2000
	defaultStartOffset = 1
)

// ReadFileTool reads file contents from inside the workspace root. Output
// uses numbered lines in cat -n format.
type ReadFileTool struct {
	fs           afero.Fs
	root         string
	maxSizeBytes int64
}

// NewReadFileTool creates a read_file tool bounded to root.
func NewReadFileTool(fs afero.Fs, root string) *ReadFileTool {
	return &ReadFileTool{
		fs:           fs,
		root:         root,
		maxSizeBytes: 1 << 20,
	}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return ToolReadFile
}

// Definition returns the model-facing definition.
func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadFile,
		Description: "Read contents of a file from the workspace. Output uses numbered lines. For large files, use offset and limit to read specific sections.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Path to the file, relative to the workspace root",
				},
				"offset": {
					Type:        "integer",
					Description: "Line number to start reading from (1-based). Defaults to 1.",
				},
				"limit": {
					Type:        "integer",
					Description: "Number of lines to read. Defaults to 2000.",
				},
			},
			Required: []string{"path"},
		},
		Idempotent: true,
	}
}

// Exec implements Tool.
func (t *ReadFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	offset := intArgOrDefault(args, "offset", defaultStartOffset)
	limit := intArgOrDefault(args, "limit", defaultReadLines)

	resolved, err := safety.ValidatePath(path, t.root)
	if err != nil {
		return nil, err
	}

	file, err := t.fs.Open(resolved)
	if err != nil {
		return errorResult(fmt.Sprintf("file not found or not readable: %s", path))
	}
	defer file.Close()

	var content []byte
	endLine := offset + limit - 1
	totalLines := 0
	truncated := false

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		totalLines++
		if totalLines < offset || totalLines > endLine {
			continue
		}
		line := scanner.Text()
		if len(line) > maxLineLength {
			line = line[:maxLineLength]
		}
		content = append(content, fmt.Sprintf("%6d\t%s\n", totalLines, line)...)
		if int64(len(content)) > t.maxSizeBytes {
			content = content[:t.maxSizeBytes]
			truncated = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return errorResult(fmt.Sprintf("read %s: %v", path, err))
	}
	if totalLines > endLine {
		truncated = true
	}

	return jsonResult(map[string]any{
		"content":     string(content),
		"path":        path,
		"offset":      offset,
		"limit":       limit,
		"total_lines": totalLines,
		"truncated":   truncated,
	})
}
