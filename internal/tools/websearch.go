package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	duckduckgoURL      = "https://html.duckduckgo.com/html/"
	searchUserAgent    = "HashTalkBot/1.0 (+https://hashtalk.dev/bot)"
	maxSearchSnippets  = 4
	webSearchToolName  = "web_search_tool"
	webScraperToolName = "webscrapper_tool"
)

// WebSearchConfig overrides the search endpoint and client, mainly for tests.
type WebSearchConfig struct {
	BaseURL string
	Client  *http.Client
}

// NewWebSearchTool returns the DuckDuckGo web search tool.
func NewWebSearchTool(cfg *WebSearchConfig) Tool {
	baseURL := duckduckgoURL
	client := &http.Client{Timeout: 15 * time.Second}
	if cfg != nil {
		if cfg.BaseURL != "" {
			baseURL = cfg.BaseURL
		}
		if cfg.Client != nil {
			client = cfg.Client
		}
	}

	params, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
		},
		"required": []string{"query"},
	})

	return Tool{
		Name:        webSearchToolName,
		Description: "Searches the web using DuckDuckGo and returns results for the given query.",
		Parameters:  params,
		Handler: func(ctx context.Context, args Args) map[string]any {
			return searchWeb(ctx, client, baseURL, args.String("query"))
		},
	}
}

func searchWeb(ctx context.Context, client *http.Client, baseURL, query string) map[string]any {
	if query == "" {
		return map[string]any{"error": "search query is required"}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return map[string]any{"error": fmt.Sprintf("search returned status %d", resp.StatusCode)}
	}

	snippets, err := extractSnippets(resp.Body)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if len(snippets) == 0 {
		return map[string]any{"error": fmt.Sprintf("no results found for '%s'", query)}
	}

	return map[string]any{
		"query":  query,
		"result": strings.Join(snippets, " "),
	}
}

// extractSnippets collects result snippet text from the DuckDuckGo HTML page.
func extractSnippets(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	var snippets []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(snippets) >= maxSearchSnippets {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") {
			text := strings.TrimSpace(nodeText(n))
			if text != "" {
				snippets = append(snippets, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return snippets, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// nodeText concatenates all text under a node.
func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
