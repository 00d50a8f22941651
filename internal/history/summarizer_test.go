package history

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

func TestLLMSummarizer_TranscriptFormat(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.AddCompletionResponse(&provider.CompletionResponse{Content: "  A short summary.  "})
	s := NewLLMSummarizer(mock, "test-model")

	summary, err := s.Summarize(context.Background(), []store.Message{
		{Role: store.RoleHuman, Content: "what is 2+2"},
		{Role: store.RoleTool, Name: "calculator", Content: `{"result": 4}`},
		{Role: store.RoleAI, Content: "It is 4."},
	})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary != "A short summary." {
		t.Errorf("summary not trimmed: %q", summary)
	}

	req := mock.CompletionCalls[0]
	if req.Messages[0].Role != "system" {
		t.Fatalf("first message role: %q", req.Messages[0].Role)
	}
	body := req.Messages[1].Content
	if !strings.Contains(body, "HUMAN: what is 2+2") || !strings.Contains(body, "AI: It is 4.") {
		t.Errorf("transcript malformed: %q", body)
	}
	if strings.Contains(body, "calculator") {
		t.Errorf("tool records must stay out of the transcript: %q", body)
	}
}

func TestLLMSummarizer_EmptyInput(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	s := NewLLMSummarizer(mock, "test-model")

	summary, err := s.Summarize(context.Background(), nil)
	if err != nil || summary != "" {
		t.Fatalf("empty input: got %q, %v", summary, err)
	}

	summary, err = s.Summarize(context.Background(), []store.Message{
		{Role: store.RoleTool, Content: "{}"},
	})
	if err != nil || summary != "" {
		t.Fatalf("tool-only input: got %q, %v", summary, err)
	}
	if len(mock.CompletionCalls) != 0 {
		t.Error("provider must not be called for empty transcripts")
	}
}

func TestLLMSummarizer_ProviderError(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.AddError(errors.New("model unavailable"))
	s := NewLLMSummarizer(mock, "test-model")

	_, err := s.Summarize(context.Background(), []store.Message{
		{Role: store.RoleHuman, Content: "hi"},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
}
