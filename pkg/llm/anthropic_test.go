package llm

import (
	"testing"
)

func TestNormalizeTranscriptExtractsSystem(t *testing.T) {
	system, msgs, err := normalizeTranscript([]Message{
		SystemMessage("you are a planner"),
		UserMessage("list my files"),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if system != "you are a planner" {
		t.Errorf("system prompt = %q", system)
	}
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Errorf("unexpected transcript: %+v", msgs)
	}
}

func TestNormalizeTranscriptMergesConsecutiveUserMessages(t *testing.T) {
	_, msgs, err := normalizeTranscript([]Message{
		UserMessage("first"),
		UserMessage("second"),
		AssistantMessage("reply"),
		UserMessage("third"),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("want 3 merged messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Content != "first\n\nsecond" {
		t.Errorf("consecutive user messages not merged: %q", msgs[0].Content)
	}
}

func TestNormalizeTranscriptEnforcesUserBookends(t *testing.T) {
	_, msgs, err := normalizeTranscript([]Message{
		AssistantMessage("hello"),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msgs[0].Role != RoleUser {
		t.Errorf("first message must be user, got %s", msgs[0].Role)
	}
	if msgs[len(msgs)-1].Role != RoleUser {
		t.Errorf("last message must be user, got %s", msgs[len(msgs)-1].Role)
	}
}

func TestNormalizeTranscriptRejectsEmpty(t *testing.T) {
	if _, _, err := normalizeTranscript(nil); err == nil {
		t.Error("empty transcript must be rejected")
	}
	if _, _, err := normalizeTranscript([]Message{SystemMessage("only system")}); err == nil {
		t.Error("system-only transcript must be rejected")
	}
}
