package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "go concurrency" {
			t.Errorf("query param: got %q", got)
		}
		fmt.Fprint(w, `<html><body>
			<div class="result">
				<a class="result__snippet">Goroutines are lightweight threads.</a>
			</div>
			<div class="result">
				<a class="result__snippet">Channels synchronize goroutines.</a>
			</div>
		</body></html>`)
	}))
	defer server.Close()

	tool := NewWebSearchTool(&WebSearchConfig{BaseURL: server.URL, Client: server.Client()})
	result := tool.Handler(context.Background(), Args{"query": "go concurrency"})

	if result["query"] != "go concurrency" {
		t.Errorf("query echo: got %v", result["query"])
	}
	text, _ := result["result"].(string)
	if !strings.Contains(text, "Goroutines are lightweight threads.") {
		t.Errorf("missing first snippet: %q", text)
	}
	if !strings.Contains(text, "Channels synchronize goroutines.") {
		t.Errorf("missing second snippet: %q", text)
	}
}

func TestWebSearch_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="no-results">Nothing</div></body></html>`)
	}))
	defer server.Close()

	tool := NewWebSearchTool(&WebSearchConfig{BaseURL: server.URL, Client: server.Client()})
	result := tool.Handler(context.Background(), Args{"query": "xyzzy"})

	if _, ok := result["error"]; !ok {
		t.Fatalf("expected error for empty results, got %v", result)
	}
}

func TestWebSearch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tool := NewWebSearchTool(&WebSearchConfig{BaseURL: server.URL, Client: server.Client()})
	result := tool.Handler(context.Background(), Args{"query": "anything"})

	errText, ok := result["error"].(string)
	if !ok {
		t.Fatalf("expected error result, got %v", result)
	}
	if !strings.Contains(errText, "429") {
		t.Errorf("error should carry the status: %q", errText)
	}
}

func TestWebSearch_MissingQuery(t *testing.T) {
	tool := NewWebSearchTool(nil)
	result := tool.Handler(context.Background(), Args{})
	if _, ok := result["error"]; !ok {
		t.Fatalf("expected error for missing query, got %v", result)
	}
}
