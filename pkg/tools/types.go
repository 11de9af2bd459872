// Package tools defines the tool surface the agents can call: the schema
// types shipped to the model, the registry, and the executor that runs a
// requested call through validation, caching and resilience.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool name constants. Agents reference tools by these names.
const (
	ToolReadFile      = "read_file"
	ToolWriteFile     = "write_file"
	ToolListFiles     = "list_files"
	ToolTreeView      = "tree_view"
	ToolDeleteFile    = "delete_file"
	ToolGrepSearch    = "grep_search"
	ToolReplaceInFile = "replace_in_file"
	ToolShell         = "shell"
	ToolWebFetch      = "web_fetch"
	ToolWebSearch     = "web_search"
	ToolGetWeather    = "get_weather"
	ToolOSInfo        = "os_info"
)

// Property describes a single parameter in a tool's input schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// InputSchema is the JSON-schema-shaped parameter description sent to the
// model alongside the tool name.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the model-facing description of a tool plus the
// execution metadata the executor needs: whether a result may be cached and
// whether a human must approve the call before it runs.
type ToolDefinition struct {
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	InputSchema      InputSchema `json:"input_schema"`
	Idempotent       bool        `json:"-"`
	RequiresApproval bool        `json:"-"`
}

// ExecResult is the outcome of a tool execution. Content is the payload
// handed back to the model, conventionally a JSON object with a "success"
// field.
type ExecResult struct {
	Content string `json:"content"`
}

// Tool is the interface all executable tools implement.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// errorResult builds the conventional JSON error payload. Tool-level
// failures (bad path, missing file) travel inside the result so the model
// can read them; only infrastructure failures use the error return.
func errorResult(msg string) (*ExecResult, error) {
	payload, err := json.Marshal(map[string]any{
		"success": false,
		"error":   msg,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal error result: %w", err)
	}
	return &ExecResult{Content: string(payload)}, nil
}

// jsonResult marshals fields into a success payload.
func jsonResult(fields map[string]any) (*ExecResult, error) {
	if _, ok := fields["success"]; !ok {
		fields["success"] = true
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &ExecResult{Content: string(payload)}, nil
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required and must be a non-empty string", key)
	}
	return v, nil
}

// stringSliceArg extracts an optional list-of-strings argument, tolerating
// the []any that JSON unmarshaling produces.
func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// boolArgOrDefault extracts an optional boolean argument.
func boolArgOrDefault(args map[string]any, key string, defaultVal bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return defaultVal
}

// intArgOrDefault extracts an integer argument, tolerating the float64 that
// JSON unmarshaling produces.
func intArgOrDefault(args map[string]any, key string, defaultVal int) int {
	v, exists := args[key]
	if !exists {
		return defaultVal
	}
	var n int
	switch val := v.(type) {
	case float64:
		n = int(val)
	case int:
		n = val
	case int64:
		n = int(val)
	default:
		return defaultVal
	}
	if n < 1 {
		return defaultVal
	}
	return n
}
