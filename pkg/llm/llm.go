// Package llm abstracts the chat-completion providers behind one interface.
// Provider failover (primary then fallback) is handled above this package by
// the resilience executor; clients here only translate requests and classify
// nothing.
package llm

import (
	"context"

	"lumina/pkg/tools"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the transcript sent to a provider. Tool results
// are folded into user-role content before the transcript reaches a client.
type Message struct {
	Role    Role
	Content string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Request is a provider-neutral completion request.
type Request struct {
	Messages    []Message
	Tools       []tools.ToolDefinition
	MaxTokens   int
	Temperature float32
}

// Response is a provider-neutral completion response. A response carries
// text, tool calls, or both.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
}

// Client is the provider interface.
type Client interface {
	Complete(ctx context.Context, in Request) (Response, error)
	ModelName() string
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
