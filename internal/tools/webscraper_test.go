package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebScraper_Paragraphs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "HashTalkBot") {
			t.Errorf("descriptive user agent missing, got %q", ua)
		}
		fmt.Fprint(w, `<html><body>
			<script>var tracking = true;</script>
			<h1>Title</h1>
			<p>First paragraph.</p>
			<p>Second paragraph.</p>
		</body></html>`)
	}))
	defer server.Close()

	tool := NewWebScraperTool(&WebScraperConfig{Client: server.Client()})
	result := tool.Handler(context.Background(), Args{"url": server.URL})

	if result["url"] != server.URL {
		t.Errorf("url echo: got %v", result["url"])
	}
	content, _ := result["content"].(string)
	if !strings.Contains(content, "First paragraph.") || !strings.Contains(content, "Second paragraph.") {
		t.Errorf("paragraph text missing: %q", content)
	}
	if strings.Contains(content, "tracking") {
		t.Errorf("script content leaked into result: %q", content)
	}
	if strings.Contains(content, "Title") {
		t.Errorf("non-paragraph text should not appear when paragraphs exist: %q", content)
	}
}

func TestWebScraper_FallbackToVisibleText(t *testing.T) {
	long := strings.Repeat("word ", 1000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><div>%s</div></body></html>`, long)
	}))
	defer server.Close()

	tool := NewWebScraperTool(&WebScraperConfig{Client: server.Client()})
	result := tool.Handler(context.Background(), Args{"url": server.URL})

	content, ok := result["content"].(string)
	if !ok {
		t.Fatalf("expected content, got %v", result)
	}
	if len(content) > scrapeFallbackLimit {
		t.Errorf("fallback content length: got %d, want <= %d", len(content), scrapeFallbackLimit)
	}
	if !strings.Contains(content, "word") {
		t.Errorf("visible text missing: %q", content)
	}
}

func TestWebScraper_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tool := NewWebScraperTool(&WebScraperConfig{Client: server.Client()})
	result := tool.Handler(context.Background(), Args{"url": server.URL})

	errText, ok := result["error"].(string)
	if !ok {
		t.Fatalf("expected error result, got %v", result)
	}
	if !strings.HasPrefix(errText, "Request failed:") {
		t.Errorf("unexpected error text: %q", errText)
	}
}

func TestWebScraper_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	tool := NewWebScraperTool(nil)
	result := tool.Handler(context.Background(), Args{"url": url})

	if _, ok := result["error"]; !ok {
		t.Fatalf("expected error result, got %v", result)
	}
}
