package normalize

import (
	"strings"
	"testing"
)

func TestNormalize_CodePrecedence(t *testing.T) {
	queries := []string{
		"write a python function to sort a list",
		"show me a javascript example for fetch with the latest api",
		"implement a class for the current stock price tracker",
		"what is 2 + 2 in python",
	}
	for _, q := range queries {
		d := Normalize(q)
		if len(d.Tools) != 0 {
			t.Errorf("query %q: expected no tools, got %v", q, d.Tools)
		}
		if d.Clarify {
			t.Errorf("query %q: code queries must not ask for clarification", q)
		}
	}
}

func TestNormalize_URL(t *testing.T) {
	d := Normalize("https://example.com summarize this")
	if !d.HasTool(ToolWebScraper) {
		t.Fatalf("expected %s, got %v", ToolWebScraper, d.Tools)
	}
	if d.Confidence[ToolWebScraper] != 0.95 {
		t.Errorf("confidence: got %v, want 0.95", d.Confidence[ToolWebScraper])
	}
	if d.ModifiedQuery != "https://example.com summarize this" {
		t.Errorf("scrape queries pass through unchanged, got %q", d.ModifiedQuery)
	}
}

func TestNormalize_TemporalSearch(t *testing.T) {
	d := Normalize("what's the latest news about the election")
	if !d.HasTool(ToolWebSearch) {
		t.Fatalf("expected %s, got %v", ToolWebSearch, d.Tools)
	}
	if d.Confidence[ToolWebSearch] != 0.85 {
		t.Errorf("confidence: got %v, want 0.85", d.Confidence[ToolWebSearch])
	}
}

func TestNormalize_SearchVerbKeepsMaxConfidence(t *testing.T) {
	// Temporal indicator (0.85) fires before the search verb rule (0.7);
	// the stronger confidence must win.
	d := Normalize("find the latest weather report for Berlin")
	if !d.HasTool(ToolWebSearch) {
		t.Fatalf("expected %s, got %v", ToolWebSearch, d.Tools)
	}
	if d.Confidence[ToolWebSearch] != 0.85 {
		t.Errorf("confidence: got %v, want 0.85", d.Confidence[ToolWebSearch])
	}
}

func TestNormalize_Arithmetic(t *testing.T) {
	d := Normalize("what is 12.5 * 4 please")
	if !d.HasTool(ToolCalculator) {
		t.Fatalf("expected %s, got %v", ToolCalculator, d.Tools)
	}
	if d.Confidence[ToolCalculator] != 0.98 {
		t.Errorf("confidence: got %v, want 0.98", d.Confidence[ToolCalculator])
	}
	// Calculator-only queries are reduced to the bare expression.
	if strings.ContainsAny(d.ModifiedQuery, "abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("expected stripped expression, got %q", d.ModifiedQuery)
	}
	if !strings.Contains(d.ModifiedQuery, "12.5") || !strings.Contains(d.ModifiedQuery, "4") {
		t.Errorf("expression lost operands: %q", d.ModifiedQuery)
	}
}

func TestNormalize_CostWithDigits(t *testing.T) {
	d := Normalize("how much would 3 tickets cost at 25 dollars each")
	if !d.HasTool(ToolCalculator) {
		t.Fatalf("expected %s, got %v", ToolCalculator, d.Tools)
	}
	if d.Confidence[ToolCalculator] < 0.9 {
		t.Errorf("confidence: got %v, want >= 0.9", d.Confidence[ToolCalculator])
	}
}

func TestNormalize_CostWithoutDigits(t *testing.T) {
	d := Normalize("how much does a tesla model three cost these days")
	if d.HasTool(ToolCalculator) {
		t.Errorf("no digits means no calculator, got %v", d.Tools)
	}
	if !d.HasTool(ToolWebSearch) {
		t.Fatalf("expected %s for pricing lookup, got %v", ToolWebSearch, d.Tools)
	}
	if d.Confidence[ToolWebSearch] < 0.8 {
		t.Errorf("confidence: got %v, want >= 0.8", d.Confidence[ToolWebSearch])
	}
}

func TestNormalize_TickerHeuristics(t *testing.T) {
	d := Normalize("TSLA stock outlook")
	if !d.HasTool(ToolWebSearch) {
		t.Fatalf("expected %s, got %v", ToolWebSearch, d.Tools)
	}
	if d.Confidence[ToolWebSearch] < 0.9 {
		t.Errorf("confidence: got %v, want >= 0.9", d.Confidence[ToolWebSearch])
	}
}

func TestNormalize_CurrentPrefix(t *testing.T) {
	d := Normalize("apple stock price and cost for 23 shares")
	if !d.HasTool(ToolWebSearch) || !d.HasTool(ToolCalculator) {
		t.Fatalf("expected search and calculator, got %v", d.Tools)
	}
	if !strings.HasPrefix(d.ModifiedQuery, "current ") {
		t.Errorf("expected 'current ' prefix, got %q", d.ModifiedQuery)
	}

	// An explicit recency word suppresses the prefix.
	d = Normalize("today's apple stock price and cost for 23 shares")
	if strings.HasPrefix(d.ModifiedQuery, "current ") {
		t.Errorf("unexpected prefix with recency word present: %q", d.ModifiedQuery)
	}
}

func TestNormalize_ShortQueryClarifies(t *testing.T) {
	d := Normalize("help me")
	if !d.Clarify {
		t.Fatal("expected clarify for short query with no tools")
	}
	if !strings.Contains(d.ModifiedQuery, "help me") {
		t.Errorf("clarification must embed the original text, got %q", d.ModifiedQuery)
	}
	if d.ClarificationPrompt == "" {
		t.Error("expected a clarification prompt")
	}
}

func TestNormalize_ShortQueryWithToolSkipsClarify(t *testing.T) {
	d := Normalize("2+2")
	if d.Clarify {
		t.Error("arithmetic query must not clarify even when short")
	}
	if !d.HasTool(ToolCalculator) {
		t.Errorf("expected calculator, got %v", d.Tools)
	}
}

func TestNormalize_EmptyQuery(t *testing.T) {
	d := Normalize("   ")
	if !d.Clarify {
		t.Fatal("expected clarify for empty query")
	}
	if d.ModifiedQuery == "" {
		t.Error("decision must never carry an empty query")
	}
}

func TestNormalize_QuoteStrippingAndWhitespace(t *testing.T) {
	d := Normalize(`  "what   is the   weather in Paris"  `)
	if d.ModifiedQuery != "what is the weather in Paris" {
		t.Errorf("normalized query: got %q", d.ModifiedQuery)
	}
}
