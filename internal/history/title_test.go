package history

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

func seedTitleSession(t *testing.T, s store.Store, threadID string, msgs []store.Message) {
	t.Helper()
	if err := s.Insert(context.Background(), store.NewSession(threadID)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(msgs) > 0 {
		if err := s.AppendMessages(context.Background(), threadID, msgs); err != nil {
			t.Fatalf("AppendMessages failed: %v", err)
		}
	}
}

func TestMaybeGenerate_SetsTitle(t *testing.T) {
	s := store.NewMemoryStore()
	seedTitleSession(t, s, "t", []store.Message{
		{Role: store.RoleHuman, Content: "how do I brew pour-over coffee"},
		{Role: store.RoleAI, Content: "Start with a medium-fine grind."},
	})
	mock := provider.NewMockProvider("mock")
	mock.AddCompletionResponse(&provider.CompletionResponse{Content: `"Pour-Over Coffee Brewing Basics"`})

	g := NewTitleGenerator(s, mock, "test-model")
	g.MaybeGenerate(context.Background(), "t")

	sess, _ := s.FindByThreadID(context.Background(), "t")
	if sess.Title != "Pour-Over Coffee Brewing Basics" {
		t.Errorf("title: got %q", sess.Title)
	}

	if len(mock.CompletionCalls) != 1 {
		t.Fatalf("completion calls: got %d, want 1", len(mock.CompletionCalls))
	}
	prompt := mock.CompletionCalls[0].Messages[1].Content
	if !strings.Contains(prompt, "Human: how do I brew pour-over coffee") {
		t.Errorf("prompt missing first message: %q", prompt)
	}
	if !strings.Contains(prompt, "Ai: Start with a medium-fine grind.") {
		t.Errorf("prompt missing second message: %q", prompt)
	}
}

func TestMaybeGenerate_SkipsCustomTitle(t *testing.T) {
	s := store.NewMemoryStore()
	seedTitleSession(t, s, "t", []store.Message{
		{Role: store.RoleHuman, Content: "hi"},
		{Role: store.RoleAI, Content: "hello"},
	})
	if err := s.SetTitle(context.Background(), "t", "Coffee Notes"); err != nil {
		t.Fatalf("SetTitle failed: %v", err)
	}
	mock := provider.NewMockProvider("mock")

	NewTitleGenerator(s, mock, "test-model").MaybeGenerate(context.Background(), "t")

	if len(mock.CompletionCalls) != 0 {
		t.Error("generator must not run once a title is set")
	}
	sess, _ := s.FindByThreadID(context.Background(), "t")
	if sess.Title != "Coffee Notes" {
		t.Errorf("title changed: %q", sess.Title)
	}
}

func TestMaybeGenerate_RequiresBothRoles(t *testing.T) {
	s := store.NewMemoryStore()
	seedTitleSession(t, s, "t", []store.Message{
		{Role: store.RoleHuman, Content: "still waiting for a reply"},
	})
	mock := provider.NewMockProvider("mock")

	NewTitleGenerator(s, mock, "test-model").MaybeGenerate(context.Background(), "t")

	if len(mock.CompletionCalls) != 0 {
		t.Error("generator must wait for the first AI message")
	}
}

func TestMaybeGenerate_SwallowsProviderFailure(t *testing.T) {
	s := store.NewMemoryStore()
	seedTitleSession(t, s, "t", []store.Message{
		{Role: store.RoleHuman, Content: "hi"},
		{Role: store.RoleAI, Content: "hello"},
	})
	mock := provider.NewMockProvider("mock")
	mock.AddError(errors.New("model unavailable"))

	NewTitleGenerator(s, mock, "test-model").MaybeGenerate(context.Background(), "t")

	sess, _ := s.FindByThreadID(context.Background(), "t")
	if sess.Title != store.DefaultTitle {
		t.Errorf("title must stay default on failure, got %q", sess.Title)
	}
}

func TestMaybeGenerate_IgnoresEmptyTitle(t *testing.T) {
	s := store.NewMemoryStore()
	seedTitleSession(t, s, "t", []store.Message{
		{Role: store.RoleHuman, Content: "hi"},
		{Role: store.RoleAI, Content: "hello"},
	})
	mock := provider.NewMockProvider("mock")
	mock.AddCompletionResponse(&provider.CompletionResponse{Content: `" "`})

	NewTitleGenerator(s, mock, "test-model").MaybeGenerate(context.Background(), "t")

	sess, _ := s.FindByThreadID(context.Background(), "t")
	if sess.Title != store.DefaultTitle {
		t.Errorf("blank generation must be dropped, got %q", sess.Title)
	}
}
