package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"lumina/pkg/tools"
)

// OllamaClient wraps the Ollama API client to implement Client. Ollama is
// the local runtime used for offline development and tests against real
// models without API keys.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a client against the Ollama server at hostURL
// (e.g. "http://localhost:11434").
func NewOllamaClient(hostURL, model string) (*OllamaClient, error) {
	parsed, err := url.Parse(hostURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", hostURL, err)
	}
	return &OllamaClient{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}, nil
}

// ModelName implements Client.
func (c *OllamaClient) ModelName() string {
	return c.model
}

// Complete implements Client.
func (c *OllamaClient) Complete(ctx context.Context, in Request) (Response, error) {
	if len(in.Messages) == 0 {
		return Response{}, fmt.Errorf("ollama completion: message list cannot be empty")
	}

	messages := make([]api.Message, 0, len(in.Messages))
	for _, msg := range in.Messages {
		messages = append(messages, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if len(in.Tools) > 0 {
		req.Tools = ollamaTools(in.Tools)
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("ollama completion: %w", err)
	}

	out := Response{
		Content:    response.Message.Content,
		StopReason: ollamaStopReason(&response),
	}
	for i := range response.Message.ToolCalls {
		call := &response.Message.ToolCalls[i]
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        id,
			Name:      call.Function.Name,
			Arguments: map[string]any(call.Function.Arguments),
		})
	}
	return out, nil
}

func ollamaTools(defs []tools.ToolDefinition) api.Tools {
	out := make(api.Tools, len(defs))
	for i := range defs {
		def := &defs[i]
		properties := make(map[string]api.ToolProperty, len(def.InputSchema.Properties))
		for name, prop := range def.InputSchema.Properties {
			properties[name] = ollamaProperty(&prop)
		}
		out[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       def.InputSchema.Type,
					Properties: properties,
					Required:   def.InputSchema.Required,
				},
			},
		}
	}
	return out
}

func ollamaProperty(prop *tools.Property) api.ToolProperty {
	out := api.ToolProperty{
		Type:        api.PropertyType{prop.Type},
		Description: prop.Description,
	}
	if len(prop.Enum) > 0 {
		enumVals := make([]any, len(prop.Enum))
		for i, v := range prop.Enum {
			enumVals[i] = v
		}
		out.Enum = enumVals
	}
	if prop.Items != nil {
		out.Items = ollamaProperty(prop.Items)
	}
	return out
}

func ollamaStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}
