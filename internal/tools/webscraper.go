package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const scrapeFallbackLimit = 2000

// WebScraperConfig overrides the HTTP client, mainly for tests.
type WebScraperConfig struct {
	Client *http.Client
}

// NewWebScraperTool returns the page scraping tool. It extracts paragraph
// text; pages without paragraphs fall back to the first 2000 characters of
// visible text.
func NewWebScraperTool(cfg *WebScraperConfig) Tool {
	client := &http.Client{Timeout: 10 * time.Second}
	if cfg != nil && cfg.Client != nil {
		client = cfg.Client
	}

	params, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL of the webpage to scrape",
			},
		},
		"required": []string{"url"},
	})

	return Tool{
		Name:        webScraperToolName,
		Description: "Fetches and returns the main content from a given webpage URL.",
		Parameters:  params,
		Timeout:     15 * time.Second,
		Handler: func(ctx context.Context, args Args) map[string]any {
			return scrapePage(ctx, client, args.String("url"))
		},
	}
}

func scrapePage(ctx context.Context, client *http.Client, pageURL string) map[string]any {
	if pageURL == "" {
		return map[string]any{"error": "url is required"}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Request failed: %v", err)}
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Request failed: %v", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return map[string]any{"error": fmt.Sprintf("Request failed: status %d", resp.StatusCode)}
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Request failed: %v", err)}
	}

	content := strings.TrimSpace(paragraphText(doc))
	if content == "" {
		text := visibleText(doc)
		if len(text) > scrapeFallbackLimit {
			text = text[:scrapeFallbackLimit]
		}
		return map[string]any{"url": pageURL, "content": text}
	}

	return map[string]any{"url": pageURL, "content": content}
}

// paragraphText joins the text of every <p> element, one per line.
func paragraphText(doc *html.Node) string {
	var paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			paragraphs = append(paragraphs, nodeText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(paragraphs, "\n")
}

// visibleText collects all rendered text, skipping script and style blocks.
func visibleText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(whitespaceCollapse(sb.String()))
}

func whitespaceCollapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
