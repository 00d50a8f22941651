package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hashtalk-dev/hashtalk/internal/agent"
	"github.com/hashtalk-dev/hashtalk/internal/history"
	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
	"github.com/hashtalk-dev/hashtalk/internal/tools"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

type noopSummarizer struct{}

func (noopSummarizer) Summarize(context.Context, []store.Message) (string, error) {
	return "condensed", nil
}

func newTestServer(t *testing.T, cfg Config) (*Server, *provider.MockProvider, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	mock := provider.NewMockProvider("mock")
	reg := tools.NewRegistry()
	reg.MustRegister(tools.NewCalculatorTool())

	controller := agent.NewController(agent.Config{
		Store:     s,
		Provider:  mock,
		Registry:  reg,
		Compactor: history.NewCompactor(s, noopSummarizer{}, history.CompactorConfig{}),
		Model:     "test-model",
	})

	cfg.Controller = controller
	cfg.Store = s
	return New(cfg), mock, s
}

func TestHandleChat(t *testing.T) {
	srv, mock, s := newTestServer(t, Config{})
	mock.AddStreamChunks([]*provider.StreamChunk{
		{Delta: "Paris is the capital of France."},
		{FinishReason: "stop"},
	})

	body := `{"message": "please tell me the capital of France", "thread_id": "t1"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response != "Paris is the capital of France." || resp.ThreadID != "t1" {
		t.Errorf("response: %+v", resp)
	}

	sess, err := s.FindByThreadID(context.Background(), "t1")
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if len(sess.Messages) != 2 {
		t.Errorf("persisted messages: got %d, want 2", len(sess.Messages))
	}
}

func TestHandleChat_GeneratesThreadID(t *testing.T) {
	srv, mock, _ := newTestServer(t, Config{})
	mock.AddStreamChunks([]*provider.StreamChunk{
		{Delta: "Hello."},
		{FinishReason: "stop"},
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "say hello to me please"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ThreadID == "" {
		t.Error("server must generate a thread id when the caller omits one")
	}
}

func TestHandleChat_MissingMessage(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"thread_id": "t1"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestHandleStreamChat(t *testing.T) {
	srv, mock, _ := newTestServer(t, Config{})
	mock.AddStreamChunks([]*provider.StreamChunk{
		{Delta: "Hel"},
		{Delta: "lo.", FinishReason: "stop"},
	})

	req := httptest.NewRequest(http.MethodGet, "/stream-chat?message=say+hello+to+me+please&thread_id=t2", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type: %q", ct)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "retry: 1000\n\n: connected\n\n") {
		t.Errorf("preamble missing: %q", body[:min(len(body), 60)])
	}
	for _, want := range []string{"event: token\n", "event: message\n", "event: done\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Index(body, "event: message\n") > strings.Index(body, "event: done\n") {
		t.Error("done must be the final event")
	}
}

func TestHandleStreamChat_RequiresThreadID(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/stream-chat?message=say+hello+to+me+please", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestHandleChatHistory(t *testing.T) {
	srv, _, s := newTestServer(t, Config{})

	sess := store.NewSession("t3")
	if err := s.Insert(context.Background(), sess); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.AppendMessages(context.Background(), "t3", []store.Message{
		{Role: store.RoleHuman, Content: "hello there friend"},
	}); err != nil {
		t.Fatalf("AppendMessages failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/chathistory/t3", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got store.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if got.ThreadID != "t3" || len(got.Messages) != 1 {
		t.Errorf("session: %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/chathistory/nope", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session: got %d, want 404", rec.Code)
	}
}

func TestHandleSessions(t *testing.T) {
	srv, _, s := newTestServer(t, Config{})

	for _, id := range []string{"a", "b"} {
		if err := s.Insert(context.Background(), store.NewSession(id)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got []store.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("summaries: got %d, want 2", len(got))
	}
	for _, sum := range got {
		if sum.Title != store.DefaultTitle {
			t.Errorf("title: %q", sum.Title)
		}
	}
}

func TestRateLimit(t *testing.T) {
	srv, mock, _ := newTestServer(t, Config{RatePerSecond: 1, RateBurst: 1})
	mock.AddStreamChunks([]*provider.StreamChunk{
		{Delta: "ok"},
		{FinishReason: "stop"},
	})

	body := `{"message": "please answer me right now", "thread_id": "t4"}`
	first := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	first.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	second.RemoteAddr = "10.0.0.1:5001"
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", rec.Code)
	}
}
