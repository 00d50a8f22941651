package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeminiProvider_CreateCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "Hello there"}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 3, "totalTokenCount": 8}
		}`)
	}))
	defer server.Close()

	p := NewGeminiProvider("test-key", server.URL)
	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("CreateCompletion failed: %v", err)
	}
	if resp.Content != "Hello there" {
		t.Errorf("Content: got %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason: got %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 8 {
		t.Errorf("TotalTokens: got %d", resp.Usage.TotalTokens)
	}
}

func TestGeminiProvider_CompletionFunctionCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{
				"content": {"role": "model", "parts": [
					{"functionCall": {"name": "calculator", "args": {"operation": "add", "num1": 2, "num2": 3}}}
				]},
				"finishReason": "STOP"
			}]
		}`)
	}))
	defer server.Close()

	p := NewGeminiProvider("test-key", server.URL)
	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "2+3"}},
	})
	if err != nil {
		t.Fatalf("CreateCompletion failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool call count: got %d, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Function.Name != "calculator" {
		t.Errorf("tool name: got %q", resp.ToolCalls[0].Function.Name)
	}
}

func TestGeminiProvider_Streaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\": [{\"content\": {\"parts\": [{\"text\": \"Hel\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\": [{\"content\": {\"parts\": [{\"text\": \"lo\"}]}, \"finishReason\": \"STOP\"}]}\n\n")
	}))
	defer server.Close()

	p := NewGeminiProvider("test-key", server.URL)
	stream, err := p.CreateStreaming(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("CreateStreaming failed: %v", err)
	}
	defer func() {
		_ = stream.Close()
	}()

	var text string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		text += chunk.Delta
	}
	if text != "Hello" {
		t.Errorf("streamed text: got %q, want %q", text, "Hello")
	}
}

func TestGeminiProvider_StreamingFunctionCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\": [{\"content\": {\"parts\": [{\"functionCall\": {\"name\": \"web_search\", \"args\": {\"query\": \"news\"}}}]}, \"finishReason\": \"STOP\"}]}\n\n")
	}))
	defer server.Close()

	p := NewGeminiProvider("test-key", server.URL)
	stream, err := p.CreateStreaming(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "latest news"}},
	})
	if err != nil {
		t.Fatalf("CreateStreaming failed: %v", err)
	}
	defer func() {
		_ = stream.Close()
	}()

	chunk, err := stream.Recv()
	if err != nil && err != io.EOF {
		t.Fatalf("Recv failed: %v", err)
	}
	if len(chunk.ToolCallDeltas) != 1 {
		t.Fatalf("tool call delta count: got %d, want 1", len(chunk.ToolCallDeltas))
	}
	delta := chunk.ToolCallDeltas[0]
	if delta.FunctionName != "web_search" {
		t.Errorf("function name: got %q", delta.FunctionName)
	}
	if delta.ArgumentDelta == "" {
		t.Error("expected full arguments in delta")
	}
}

func TestGeminiProvider_ErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"code": 403, "message": "API key not valid", "status": "PERMISSION_DENIED"}}`)
	}))
	defer server.Close()

	p := NewGeminiProvider("bad-key", server.URL)
	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if provErr.Code != ErrorCodeAuthentication {
		t.Errorf("Code: got %q, want %q", provErr.Code, ErrorCodeAuthentication)
	}
	if provErr.IsRetryable {
		t.Error("authentication errors must not be retryable")
	}
}

func TestRegistry(t *testing.T) {
	RegisterFactory("scripted", func(config map[string]any) (Provider, error) {
		return NewMockProvider("scripted"), nil
	})

	p, err := New("scripted", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.Name() != "scripted" {
		t.Errorf("Name: got %q", p.Name())
	}

	if _, err := New("missing-provider", nil); err == nil {
		t.Error("expected error for unregistered provider")
	}

	found := false
	for _, name := range List() {
		if name == "scripted" {
			found = true
		}
	}
	if !found {
		t.Error("List did not include registered provider")
	}
}
