package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeClient wraps the Anthropic SDK to implement Client.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a Claude client for the given model. baseURL is
// optional and overrides the API endpoint when set.
func NewClaudeClient(apiKey, model, baseURL string) *ClaudeClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// ModelName implements Client.
func (c *ClaudeClient) ModelName() string {
	return string(c.model)
}

// normalizeTranscript prepares messages for the Anthropic API: system
// messages move to the top-level system parameter and consecutive
// same-role messages merge so the transcript alternates user/assistant
// starting with user.
func normalizeTranscript(messages []Message) (systemPrompt string, alternating []Message, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var rest []Message
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(rest) == 0 {
		return "", nil, fmt.Errorf("need at least one non-system message")
	}

	var merged []Message
	for _, msg := range rest {
		role := msg.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		if n := len(merged); n > 0 && merged[n-1].Role == role {
			merged[n-1].Content += "\n\n" + msg.Content
			continue
		}
		merged = append(merged, Message{Role: role, Content: msg.Content})
	}

	if merged[0].Role != RoleUser {
		merged = append([]Message{{Role: RoleUser, Content: "(continue)"}}, merged...)
	}
	if merged[len(merged)-1].Role != RoleUser {
		merged = append(merged, Message{Role: RoleUser, Content: "(continue)"})
	}
	return systemPrompt, merged, nil
}

// Complete implements Client.
func (c *ClaudeClient) Complete(ctx context.Context, in Request) (Response, error) {
	systemPrompt, transcript, err := normalizeTranscript(in.Messages)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic transcript: %w", err)
	}

	messages := make([]anthropic.MessageParam, 0, len(transcript))
	for _, msg := range transcript {
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}

	if len(in.Tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(in.Tools))
		for i := range in.Tools {
			def := &in.Tools[i]
			var properties any
			if len(def.InputSchema.Properties) > 0 {
				props := make(map[string]any, len(def.InputSchema.Properties))
				for name, prop := range def.InputSchema.Properties {
					propMap := map[string]any{"type": prop.Type}
					if prop.Description != "" {
						propMap["description"] = prop.Description
					}
					if len(prop.Enum) > 0 {
						propMap["enum"] = prop.Enum
					}
					props[name] = propMap
				}
				properties = props
			}
			schema := anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: properties,
				Required:   def.InputSchema.Required,
			}
			toolParams = append(toolParams, anthropic.ToolUnionParamOfTool(schema, def.Name))
		}
		params.Tools = toolParams
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic completion: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return Response{}, fmt.Errorf("anthropic completion: empty response")
	}

	var out Response
	out.StopReason = string(resp.StopReason)
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return Response{}, fmt.Errorf("parse tool input for %s: %w", toolUse.Name, err)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}
