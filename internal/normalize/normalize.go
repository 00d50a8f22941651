// Package normalize produces a heuristic tool decision for a raw user query.
// The rules are deliberately cheap and inspectable; no model call is involved.
package normalize

import (
	"fmt"
	"log"
	"regexp"
	"strings"
)

// Tool names the normalizer can propose.
const (
	ToolCalculator = "calculator"
	ToolWebSearch  = "web_search_tool"
	ToolWebScraper = "webscrapper_tool"
)

// ToolDecision is the normalizer's verdict for one query. It is advisory
// context for the model, recomputed every turn, never persisted.
type ToolDecision struct {
	ModifiedQuery       string             `json:"modified_query"`
	Tools               []string           `json:"tools"`
	Reasons             map[string]string  `json:"reasons"`
	Confidence          map[string]float64 `json:"confidence"`
	Clarify             bool               `json:"clarify"`
	ClarificationPrompt string             `json:"clarification_prompt,omitempty"`
}

// HasTool reports whether the decision proposes the named tool.
func (d *ToolDecision) HasTool(name string) bool {
	for _, t := range d.Tools {
		if t == name {
			return true
		}
	}
	return false
}

var (
	codeIndicatorRe = regexp.MustCompile(`\b(python|javascript|js|node|function|class|script|implement|example|snippet)\b`)
	urlRe           = regexp.MustCompile(`https?://|www\.\w+\.`)
	temporalRe      = regexp.MustCompile(`\b(current|latest|today|now|recent|price|quote|stock|news|who is|what is the population|election|president|prime minister|weather)\b`)
	searchVerbRe    = regexp.MustCompile(`\b(find|search|lookup|where is|homepage)\b`)
	arithmeticRe    = regexp.MustCompile(`[-+]?\d+(\.\d+)?\s*[\+\-\*/]\s*[-+]?\d+(\.\d+)?`)
	costRe          = regexp.MustCompile(`\b(buy|cost|total|how much|price of|pay for|spend|amount|shares)\b`)
	digitRe         = regexp.MustCompile(`\d`)
	tickerRe        = regexp.MustCompile(`\b[A-Z]{1,5}\b`)
	stockWordRe     = regexp.MustCompile(`\bstock\b|\bshare(s)?\b|\bticker\b`)
	knownTickerRe   = regexp.MustCompile(`\bapple stock\b|\baapl\b`)
	recencyRe       = regexp.MustCompile(`\b(current|latest|today|now)\b`)
	pricingNewsRe   = regexp.MustCompile(`\b(price|stock|quote|news|current|today)\b`)
	quoteTrimRe     = regexp.MustCompile("^\\s*[`'\"]+|[`'\"]+\\s*$")
	whitespaceRe    = regexp.MustCompile(`\s+`)
	nonMathRe       = regexp.MustCompile(`[^\d\.\+\-\*/(),%\s]`)
)

// Normalize inspects a raw query and returns the tool decision. It never
// fails: any internal panic degrades to the pass-through decision.
func Normalize(rawQuery string) (decision ToolDecision) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[normalize] recovered from panic: %v", r)
			decision = passThrough(rawQuery)
		}
	}()

	q := strings.TrimSpace(rawQuery)
	if q == "" {
		return ToolDecision{
			ModifiedQuery:       "Could you tell me what you'd like help with?",
			Reasons:             map[string]string{},
			Confidence:          map[string]float64{},
			Clarify:             true,
			ClarificationPrompt: "Please provide a short description of what you want help with.",
		}
	}

	words := len(strings.Fields(q))
	ql := strings.ToLower(q)

	// Normalize: strip surrounding quotes/backticks, collapse whitespace.
	q = strings.TrimSpace(quoteTrimRe.ReplaceAllString(q, ""))
	q = whitespaceRe.ReplaceAllString(q, " ")

	// Code requests never get external tools. Absolute precedence.
	if codeIndicatorRe.MatchString(ql) || strings.Contains(ql, "```") {
		return passThroughNormalized(q)
	}

	decision = analyzeTools(q, ql)

	// Very short query with no suggested tools: ask for more detail.
	if words < 3 && len(decision.Tools) == 0 {
		prompt := fmt.Sprintf(
			"I need a bit more detail to help. Could you expand on: '%s'? "+
				"For example: what exactly are you trying to find or compute?", q)
		decision.ModifiedQuery = prompt
		decision.Clarify = true
		decision.ClarificationPrompt = prompt
		return decision
	}

	switch {
	case decision.HasTool(ToolWebSearch) && decision.HasTool(ToolCalculator):
		// Combined lookups (e.g. "apple stock price and cost for 23 shares")
		// want fresh data unless the query already says so.
		if !recencyRe.MatchString(ql) {
			decision.ModifiedQuery = "current " + q
		} else {
			decision.ModifiedQuery = q
		}

	case len(decision.Tools) == 1 && decision.Tools[0] == ToolCalculator:
		// Reduce to a bare arithmetic expression.
		mathQ := strings.TrimSpace(nonMathRe.ReplaceAllString(q, ""))
		if mathQ == "" {
			mathQ = q
		}
		decision.ModifiedQuery = mathQ

	case decision.HasTool(ToolWebSearch):
		if !recencyRe.MatchString(ql) && pricingNewsRe.MatchString(ql) {
			decision.ModifiedQuery = "current " + q
		} else {
			decision.ModifiedQuery = q
		}

	default:
		decision.ModifiedQuery = q
	}

	return decision
}

// analyzeTools runs the ordered rule groups over the lowered query.
func analyzeTools(q, ql string) ToolDecision {
	d := ToolDecision{
		Reasons:    map[string]string{},
		Confidence: map[string]float64{},
	}

	// 1) URL or domain: scrape it.
	if urlRe.MatchString(ql) || strings.Contains(ql, "url:") {
		d.addTool(ToolWebScraper, "contains a URL or domain", 0.95)
	}

	// 2) Factual or time-sensitive phrasing: search the web.
	if temporalRe.MatchString(ql) {
		d.addTool(ToolWebSearch, "looks like a factual/current web query", 0.85)
	}

	// 3) Explicit search verbs.
	if searchVerbRe.MatchString(ql) && !d.HasTool(ToolWebSearch) {
		d.addTool(ToolWebSearch, "user asked to find/search", 0.7)
	}

	// 4) Explicit arithmetic expression.
	if arithmeticRe.MatchString(q) {
		d.addTool(ToolCalculator, "contains explicit arithmetic expression", 0.98)
	}

	// Cost/purchase language: calculator if numbers are present, otherwise
	// a pricing lookup.
	if costRe.MatchString(ql) {
		if digitRe.MatchString(q) {
			d.addTool(ToolCalculator, "asks about cost or totals with numbers", 0.9)
		} else {
			d.addTool(ToolWebSearch, "needs current pricing", 0.8)
		}
	}

	// 5) Ticker-symbol heuristics.
	if tickerRe.MatchString(q) && stockWordRe.MatchString(ql) {
		d.addTool(ToolWebSearch, "stock/ticker query", 0.9)
	}
	if knownTickerRe.MatchString(ql) {
		d.addTool(ToolWebSearch, "company stock query", 0.9)
	}

	return d
}

// addTool adds or strengthens a tool proposal, keeping the max confidence
// and appending the reason when the tool was already proposed.
func (d *ToolDecision) addTool(name, reason string, conf float64) {
	if !d.HasTool(name) {
		d.Tools = append(d.Tools, name)
	}
	if prev, ok := d.Reasons[name]; ok && prev != "" {
		d.Reasons[name] = prev + " / " + reason
	} else {
		d.Reasons[name] = reason
	}
	if conf > d.Confidence[name] {
		d.Confidence[name] = conf
	}
}

func passThrough(rawQuery string) ToolDecision {
	return ToolDecision{
		ModifiedQuery: rawQuery,
		Reasons:       map[string]string{},
		Confidence:    map[string]float64{},
	}
}

func passThroughNormalized(q string) ToolDecision {
	return ToolDecision{
		ModifiedQuery: q,
		Reasons:       map[string]string{},
		Confidence:    map[string]float64{},
	}
}
