package tools

import (
	"context"
	"os"
	"runtime"
)

// OSInfoTool reports static host information. Results are long-lived and
// cache well.
type OSInfoTool struct {
	workspaceRoot string
}

// NewOSInfoTool creates an os_info tool.
func NewOSInfoTool(workspaceRoot string) *OSInfoTool {
	return &OSInfoTool{workspaceRoot: workspaceRoot}
}

// Name returns the tool name.
func (t *OSInfoTool) Name() string {
	return ToolOSInfo
}

// Definition returns the model-facing definition.
func (t *OSInfoTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolOSInfo,
		Description: "Report the host operating system, architecture, hostname and workspace root.",
		InputSchema: InputSchema{Type: "object"},
		Idempotent:  true,
	}
}

// Exec implements Tool.
func (t *OSInfoTool) Exec(_ context.Context, _ map[string]any) (*ExecResult, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return jsonResult(map[string]any{
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"cpus":           runtime.NumCPU(),
		"hostname":       hostname,
		"workspace_root": t.workspaceRoot,
	})
}
