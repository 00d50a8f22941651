package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
)

const systemPrompt = "You are a helpful, precise assistant. Use tools sparingly and only when you " +
	"cannot confidently answer using the prompt + conversation context.\n\n" +
	"DECISION RULES (be strict):\n" +
	"1) Do NOT call a tool when the user asks you to produce code, examples, or explanations that do not require external facts.\n" +
	"2) Call a tool when you need external information or to run computation that the runtime provides.\n" +
	"3) After a tool returns, either call another tool or give a final human-facing reply.\n"

const synthesisSystemPrompt = "You are a helpful assistant. Below are verified tool outputs. Using only the information " +
	"presented, produce a concise, human-facing answer to the user's question. " +
	"When you mention a fact, briefly indicate which tool supplied it in parentheses. " +
	"Do NOT print raw tool JSON. Summarize and use plain language. " +
	"If results disagree, state the discrepancy and suggest next steps."

const (
	maxResultChars = 600
	maxArgsChars   = 180
)

// fewShots anchor the no-tool and tool cases before any history.
var fewShots = []provider.Message{
	{Role: "user", Content: "python function to add two numbers"},
	{Role: "assistant", Content: "```python\ndef add(a, b):\n    return a + b\n```"},
	{Role: "user", Content: "what is 12.5 * 4"},
	{Role: "assistant", Content: "I'll compute that with the calculator tool."},
}

// invocation is one tool call made during the current turn, scoped to the
// turn and discarded after persistence.
type invocation struct {
	callID string
	name   string
	args   string
	result map[string]any
}

// composeToolDigest renders invocations as a compact text block for the
// synthesis prompt. Results and argument blobs are truncated to bound
// prompt size.
func composeToolDigest(invocations []*invocation) string {
	var lines []string
	for _, inv := range invocations {
		result := ""
		if b, err := json.Marshal(inv.result); err == nil {
			result = string(b)
		}
		if len(result) > maxResultChars {
			result = result[:maxResultChars] + " ... [truncated]"
		}

		args := strings.TrimSpace(inv.args)
		if len(args) > maxArgsChars {
			args = args[:maxArgsChars] + " ..."
		}

		header := "- " + inv.name
		if inv.callID != "" {
			header += fmt.Sprintf(" (call_id: %s)", inv.callID)
		}
		if args != "" {
			header += ", args: " + args
		}
		lines = append(lines, header+"\n  result: "+result)
	}
	return strings.Join(lines, "\n")
}

// buildSynthesisPrompt constructs the tools-unbound follow-up request that
// turns raw tool results into the final user-facing answer.
func buildSynthesisPrompt(userText string, invocations []*invocation) []provider.Message {
	return []provider.Message{
		{Role: "system", Content: synthesisSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"User question: %s\n\nTool outputs:\n%s\n\n"+
				"Now write a short (2-6 sentences) final answer to the user's question using the tool outputs above. "+
				"Keep the answer direct and include short citations like [web_search_tool] where it helps.",
			userText, composeToolDigest(invocations))},
	}
}
