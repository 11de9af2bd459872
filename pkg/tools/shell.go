package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"lumina/pkg/safety"
)

// ShellTool runs a single allow-listed command inside the workspace root.
// The command line is tokenized deterministically and executed directly;
// no shell interpreter is ever spawned, so pipes, redirection and compound
// commands are structurally impossible.
type ShellTool struct {
	root         string
	allowList    []string
	safeCommands map[string]bool
	timeout      time.Duration
}

// NewShellTool creates a shell tool. safeCommands is the subset of the
// allow-list that runs without human approval.
func NewShellTool(root string, allowList, safeCommands []string, timeout time.Duration) *ShellTool {
	safe := make(map[string]bool, len(safeCommands))
	for _, cmd := range safeCommands {
		safe[cmd] = true
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ShellTool{
		root:         root,
		allowList:    allowList,
		safeCommands: safe,
		timeout:      timeout,
	}
}

// Name returns the tool name.
func (t *ShellTool) Name() string {
	return ToolShell
}

// Definition returns the model-facing definition.
func (t *ShellTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: ToolShell,
		Description: fmt.Sprintf(
			"Run a single command in the workspace. Only these commands are allowed: %s. Pipes, redirection and compound commands are rejected.",
			strings.Join(t.allowList, ", ")),
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"command": {
					Type:        "string",
					Description: "Command line to run, e.g. 'ls -la' or 'git status'",
				},
			},
			Required: []string{"command"},
		},
	}
}

// NeedsApproval implements ApprovalGater: commands whose leading token is in
// the safe subset run without approval, everything else waits for a human.
// Invalid commands skip the approval queue; they are rejected at execution.
func (t *ShellTool) NeedsApproval(args map[string]any) (bool, string) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return false, ""
	}
	argv, err := safety.ValidateCommand(command, t.allowList)
	if err != nil {
		return false, ""
	}
	if t.safeCommands[argv[0]] {
		return false, ""
	}
	return true, fmt.Sprintf("command %q can modify state and requires approval", argv[0])
}

// Exec implements Tool.
func (t *ShellTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}

	argv, err := safety.ValidateCommand(command, t.allowList)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if ctx.Err() == context.DeadlineExceeded {
			return errorResult(fmt.Sprintf("command timed out after %s", t.timeout))
		} else {
			return errorResult(fmt.Sprintf("command failed to start: %v", runErr))
		}
	}

	return jsonResult(map[string]any{
		"success":   exitCode == 0,
		"command":   command,
		"exit_code": exitCode,
		"stdout":    truncateOutput(stdout.String(), 50000),
		"stderr":    truncateOutput(stderr.String(), 10000),
	})
}

func truncateOutput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[output truncated]"
}
