// Package tools holds the agent's tool registry and built-in tools. Tools
// are stateless functions returning a structured result map; a failure is a
// map with an "error" key, never a raised error, so a bad tool call cannot
// abort the enclosing turn.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
	"github.com/hashtalk-dev/hashtalk/pkg/observability"
)

const defaultInvokeTimeout = 30 * time.Second

// Args provides typed access to decoded tool arguments.
type Args map[string]any

// String returns a string argument
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Float returns a numeric argument
func (a Args) Float(key string) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return 0
}

// Handler executes one tool call. The returned map is the structured result;
// failures are reported inside the map under "error".
type Handler func(ctx context.Context, args Args) map[string]any

// Tool is a registered tool with its parameter schema.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Timeout     time.Duration
	Handler     Handler
}

// Registry maps tool names to tools and dispatches invocations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewDefaultRegistry creates a registry holding the built-in tools.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(NewCalculatorTool())
	r.MustRegister(NewWebSearchTool(nil))
	r.MustRegister(NewWebScraperTool(nil))
	return r
}

// Register adds a tool; duplicate names are rejected.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister registers a tool and panics on conflict.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Specs returns the tool declarations in the shape the model binding wants.
func (r *Registry) Specs() []provider.Tool {
	tools := r.List()
	specs := make([]provider.Tool, len(tools))
	for i, t := range tools {
		specs[i] = provider.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return specs
}

// Invoke runs the named tool against JSON-encoded arguments. It always
// returns a result map: unknown tools, bad arguments, timeouts, and handler
// panics all surface as {"error": text}.
func (r *Registry) Invoke(ctx context.Context, name, argsJSON string) map[string]any {
	start := time.Now()

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		observability.RecordToolCall(name, "unknown", time.Since(start))
		return map[string]any{"error": fmt.Sprintf("unknown tool '%s'", name)}
	}

	args := Args{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			observability.RecordToolCall(name, "bad_args", time.Since(start))
			return map[string]any{"error": fmt.Sprintf("invalid arguments for %s: %v", name, err)}
		}
	}

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = defaultInvokeTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan map[string]any, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[tools] %s panicked: %v", name, rec)
				resultCh <- map[string]any{"error": fmt.Sprintf("tool %s failed: %v", name, rec)}
			}
		}()
		resultCh <- tool.Handler(callCtx, args)
	}()

	var result map[string]any
	select {
	case result = <-resultCh:
	case <-callCtx.Done():
		result = map[string]any{"error": fmt.Sprintf("tool %s timed out after %s", name, timeout)}
	}

	status := "ok"
	if _, failed := result["error"]; failed {
		status = "error"
	}
	observability.RecordToolCall(name, status, time.Since(start))
	return result
}
