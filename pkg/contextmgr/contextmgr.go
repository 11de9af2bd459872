// Package contextmgr turns checkpointed conversation history into the
// bounded transcript a provider request can carry. Token counts come from
// tiktoken; when the window overflows, the oldest middle of the
// conversation is elided while the system prompt, the original request and
// the recent tail survive.
package contextmgr

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"lumina/pkg/checkpoint"
	"lumina/pkg/llm"
	"lumina/pkg/logx"
)

const (
	// recentTailTurns is how many trailing messages survive a trim.
	recentTailTurns = 12

	elisionNotice = "[earlier conversation elided to fit the context window]"
)

// Manager builds and bounds provider transcripts.
type Manager struct {
	codec     tokenizer.Codec
	maxTokens int
	logger    *logx.Logger
}

// New creates a Manager bounded at maxContextTokens. Claude and GPT token
// counts differ slightly from the GPT-4 encoding used here; the bound is a
// budget, not an exact fit.
func New(maxContextTokens int) (*Manager, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Manager{
		codec:     codec,
		maxTokens: maxContextTokens,
		logger:    logx.NewLogger("contextmgr"),
	}, nil
}

// CountTokens returns the token count of text, falling back to a 4-chars
// per-token estimate if the codec fails.
func (m *Manager) CountTokens(text string) int {
	count, err := m.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// TranscriptTokens sums the token counts of every message.
func (m *Manager) TranscriptTokens(msgs []llm.Message) int {
	total := 0
	for _, msg := range msgs {
		total += m.CountTokens(msg.Content) + m.CountTokens(string(msg.Role))
	}
	return total
}

// BuildTranscript converts checkpointed turns into provider messages.
// Tool-role turns fold into user-role messages so every provider sees the
// same shape.
func (m *Manager) BuildTranscript(systemPrompt string, turns []checkpoint.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns)+1)
	if systemPrompt != "" {
		msgs = append(msgs, llm.SystemMessage(systemPrompt))
	}
	for i := range turns {
		turn := &turns[i]
		switch turn.Role {
		case checkpoint.RoleAssistant:
			content := turn.Content
			for _, call := range turn.ToolCalls {
				if content != "" {
					content += "\n"
				}
				content += fmt.Sprintf("[requested tool %s]", call.Name)
			}
			msgs = append(msgs, llm.AssistantMessage(content))
		case checkpoint.RoleTool:
			for _, call := range turn.ToolCalls {
				msgs = append(msgs, llm.UserMessage(
					fmt.Sprintf("Tool result (%s, %s): %s", call.Name, call.Status, call.Result)))
			}
			if len(turn.ToolCalls) == 0 && turn.Content != "" {
				msgs = append(msgs, llm.UserMessage(turn.Content))
			}
		default:
			msgs = append(msgs, llm.UserMessage(turn.Content))
		}
	}
	return m.Trim(msgs)
}

// Trim bounds msgs to the token budget. System messages and the first user
// message always survive; after that the most recent tail is kept and the
// elided middle is replaced with a single notice.
func (m *Manager) Trim(msgs []llm.Message) []llm.Message {
	if m.maxTokens <= 0 || m.TranscriptTokens(msgs) <= m.maxTokens {
		return msgs
	}

	var head []llm.Message
	var body []llm.Message
	firstUserSeen := false
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			head = append(head, msg)
			continue
		}
		if !firstUserSeen && msg.Role == llm.RoleUser {
			head = append(head, msg)
			firstUserSeen = true
			continue
		}
		body = append(body, msg)
	}

	tail := body
	if len(tail) > recentTailTurns {
		tail = tail[len(tail)-recentTailTurns:]
	}

	trimmed := make([]llm.Message, 0, len(head)+len(tail)+1)
	trimmed = append(trimmed, head...)
	if len(tail) < len(body) {
		trimmed = append(trimmed, llm.UserMessage(elisionNotice))
	}
	trimmed = append(trimmed, tail...)

	// Still over budget with the tail intact: drop from the front of the
	// tail one message at a time.
	for m.TranscriptTokens(trimmed) > m.maxTokens && len(tail) > 1 {
		tail = tail[1:]
		trimmed = trimmed[:len(head)]
		trimmed = append(trimmed, llm.UserMessage(elisionNotice))
		trimmed = append(trimmed, tail...)
	}

	m.logger.Debug("trimmed transcript from %d to %d messages", len(msgs), len(trimmed))
	return trimmed
}
