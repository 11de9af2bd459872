package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"lumina/pkg/tools"
)

// OpenAIClient wraps the official OpenAI SDK to implement Client.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI client for the given model. baseURL is
// optional and supports OpenAI-compatible endpoints.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// ModelName implements Client.
func (c *OpenAIClient) ModelName() string {
	return c.model
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, in Request) (Response, error) {
	if len(in.Messages) == 0 {
		return Response{}, fmt.Errorf("openai completion: message list cannot be empty")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for _, msg := range in.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(in.MaxTokens)),
		Temperature:         openai.Float(float64(in.Temperature)),
	}

	if len(in.Tools) > 0 {
		toolParams := make([]openai.ChatCompletionToolUnionParam, 0, len(in.Tools))
		for i := range in.Tools {
			def := &in.Tools[i]
			properties := make(map[string]any, len(def.InputSchema.Properties))
			for name, prop := range def.InputSchema.Properties {
				properties[name] = openaiPropertySchema(&prop)
			}
			toolParams = append(toolParams, openai.ChatCompletionFunctionTool(
				openai.FunctionDefinitionParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters: openai.FunctionParameters(map[string]any{
						"type":       "object",
						"properties": properties,
						"required":   def.InputSchema.Required,
					}),
				},
			))
		}
		params.Tools = toolParams
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai completion: empty response")
	}

	choice := resp.Choices[0]
	out := Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
	}
	for i := range choice.Message.ToolCalls {
		call := &choice.Message.ToolCalls[i]
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return Response{}, fmt.Errorf("parse tool arguments for %s: %w", call.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

// openaiPropertySchema recursively converts a Property to the JSON schema
// map the OpenAI function-calling API expects.
func openaiPropertySchema(prop *tools.Property) map[string]any {
	schema := map[string]any{"type": prop.Type}
	if prop.Description != "" {
		schema["description"] = prop.Description
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	if prop.Items != nil {
		schema["items"] = openaiPropertySchema(prop.Items)
	}
	if len(prop.Properties) > 0 {
		nested := make(map[string]any, len(prop.Properties))
		for name, child := range prop.Properties {
			if child != nil {
				nested[name] = openaiPropertySchema(child)
			}
		}
		schema["properties"] = nested
	}
	return schema
}
