package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

const summarySystemPrompt = "You are a helpful assistant that writes crisp, lossless summaries of chats. " +
	"Keep specific facts, entities, decisions, and action items. Be under 200-300 words."

// LLMSummarizer condenses chat history through a completion model.
type LLMSummarizer struct {
	provider provider.Provider
	model    string
}

// NewLLMSummarizer creates a summarizer bound to a provider and model.
func NewLLMSummarizer(p provider.Provider, model string) *LLMSummarizer {
	return &LLMSummarizer{provider: p, model: model}
}

// Summarize produces one summary text for the given messages. Only human
// and AI messages enter the transcript. Empty input yields an empty summary.
func (s *LLMSummarizer) Summarize(ctx context.Context, msgs []store.Message) (string, error) {
	if len(msgs) == 0 {
		return "", nil
	}

	var transcript []string
	for _, m := range msgs {
		switch m.Role {
		case store.RoleHuman, store.RoleAI:
			transcript = append(transcript, fmt.Sprintf("%s: %s", strings.ToUpper(string(m.Role)), m.Content))
		}
	}
	if len(transcript) == 0 {
		return "", nil
	}

	resp, err := s.provider.CreateCompletion(ctx, provider.CompletionRequest{
		Model: s.model,
		Messages: []provider.Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: "Summarize the following chat history:\n\n" + strings.Join(transcript, "\n")},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize chat history: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}
