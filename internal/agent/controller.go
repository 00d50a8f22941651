// Package agent runs one chat turn end to end: normalize the query, stream
// the primary model, dispatch tool calls, synthesize a grounded answer, and
// persist the results.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hashtalk-dev/hashtalk/internal/history"
	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
	"github.com/hashtalk-dev/hashtalk/internal/normalize"
	obs "github.com/hashtalk-dev/hashtalk/internal/observability"
	"github.com/hashtalk-dev/hashtalk/internal/tools"
	"github.com/hashtalk-dev/hashtalk/pkg/observability"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

const fallbackReply = "I wasn't able to produce an answer this time. Please try again."

// Controller drives the per-turn state machine. One instance serves all
// threads; per-turn state lives on the stack of Run.
type Controller struct {
	store     store.Store
	provider  provider.Provider
	registry  *tools.Registry
	compactor *history.Compactor
	titles    *history.TitleGenerator
	model     string
}

// Config holds the controller's collaborators.
type Config struct {
	Store     store.Store
	Provider  provider.Provider
	Registry  *tools.Registry
	Compactor *history.Compactor
	Titles    *history.TitleGenerator
	Model     string
}

// NewController creates a turn controller.
func NewController(cfg Config) *Controller {
	return &Controller{
		store:     cfg.Store,
		provider:  cfg.Provider,
		registry:  cfg.Registry,
		compactor: cfg.Compactor,
		titles:    cfg.Titles,
		model:     cfg.Model,
	}
}

// Run executes one turn and emits its ordered event sequence. The returned
// channel is closed after the done event. An empty threadID gets a generated
// one; the thread id is carried on the message and done events.
//
// Cancelling ctx stops emission; whatever output was already produced is
// still persisted best effort.
func (c *Controller) Run(ctx context.Context, threadID, text string) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		c.runTurn(ctx, threadID, text, events)
	}()
	return events
}

// TurnResult is the synchronous view of a completed turn.
type TurnResult struct {
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
}

// RunSync executes one turn and blocks until it finishes, returning the
// final text. Used by the non-streaming endpoint and the local REPL.
func (c *Controller) RunSync(ctx context.Context, threadID, text string) (*TurnResult, error) {
	res := &TurnResult{ThreadID: threadID}
	var turnErr error
	for ev := range c.Run(ctx, threadID, text) {
		switch ev.Type {
		case EventMessage:
			res.ThreadID = ev.ThreadID
			res.Content = ev.Content
		case EventError:
			turnErr = errors.New(ev.Content)
		case EventDone:
			if ev.ThreadID != "" {
				res.ThreadID = ev.ThreadID
			}
		}
	}
	if turnErr != nil && res.Content == "" {
		return nil, turnErr
	}
	return res, nil
}

func (c *Controller) runTurn(ctx context.Context, threadID, text string, events chan<- Event) {
	start := time.Now()
	status := "ok"
	defer func() {
		observability.RecordTurn(status, time.Since(start))
	}()

	if threadID == "" {
		threadID = uuid.NewString()
	}

	ctx, span := obs.StartSpan(ctx, "agent.turn", map[string]any{"thread_id": threadID})
	defer span.End()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(msg string, err error) {
		status = "error"
		span.SetError(err)
		log.Printf("[agent] turn %s: %s: %v", threadID, msg, err)
		emit(Event{Type: EventError, ThreadID: threadID, Content: msg})
		emit(Event{Type: EventDone, ThreadID: threadID})
	}

	sess, err := c.ensureSession(ctx, threadID)
	if err != nil {
		fail("could not load session", err)
		return
	}

	// Compaction runs before the turn so the context stays bounded.
	// Failure is operator-visible only; the turn proceeds on the
	// uncompacted log.
	if err := c.compactor.Consolidate(ctx, threadID); err != nil {
		log.Printf("[agent] turn %s: compaction: %v", threadID, err)
	} else if fresh, err := c.store.FindByThreadID(ctx, threadID); err == nil {
		sess = fresh
	}

	decision := normalize.Normalize(text)

	if decision.Clarify {
		c.persist(ctx, threadID, []store.Message{
			{Role: store.RoleHuman, Content: text},
			{Role: store.RoleAI, Content: decision.ClarificationPrompt},
		})
		status = "clarify"
		emit(Event{Type: EventMessage, ThreadID: threadID, Content: decision.ClarificationPrompt})
		emit(Event{Type: EventDone, ThreadID: threadID})
		return
	}

	// The raw text is what the user said; the normalized query is what the
	// model sees.
	msgs, _ := history.BuildContext(sess, decision.ModifiedQuery)
	request := make([]provider.Message, 0, 1+len(fewShots)+len(msgs))
	request = append(request, provider.Message{Role: "system", Content: systemPrompt})
	request = append(request, fewShots...)
	request = append(request, msgs...)

	if err := c.store.AppendMessages(ctx, threadID, []store.Message{
		{Role: store.RoleHuman, Content: text},
	}); err != nil {
		fail("could not save your message", err)
		return
	}

	primary, calls, streamErr := c.streamPrimary(ctx, request, emit, threadID)
	if streamErr != nil && primary == "" && len(calls) == 0 {
		fail("the model is currently unavailable", streamErr)
		return
	}

	invocations := c.dispatchTools(ctx, calls, emit, threadID)

	final := primary
	if len(invocations) > 0 {
		if synth := c.streamSynthesis(ctx, text, invocations, emit, threadID); synth != "" {
			final = synth
		} else if final == "" {
			final = composeToolDigest(invocations)
		}
	}
	if final == "" {
		final = fallbackReply
	}
	if streamErr != nil {
		status = "error"
		span.SetError(streamErr)
	}

	records := make([]store.Message, 0, len(invocations)+1)
	for _, inv := range invocations {
		records = append(records, toolRecord(inv))
	}
	records = append(records, store.Message{Role: store.RoleAI, Content: final})
	c.persist(ctx, threadID, records)

	emit(Event{Type: EventMessage, ThreadID: threadID, Content: final})
	emit(Event{Type: EventDone, ThreadID: threadID})
}

func (c *Controller) ensureSession(ctx context.Context, threadID string) (*store.Session, error) {
	sess, err := c.store.FindByThreadID(ctx, threadID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, store.ErrSessionNotFound) {
		return nil, err
	}

	sess = store.NewSession(threadID)
	if err := c.store.Insert(ctx, sess); err != nil {
		if errors.Is(err, store.ErrSessionExists) {
			return c.store.FindByThreadID(ctx, threadID)
		}
		return nil, err
	}
	return sess, nil
}

// pendingCall accumulates one tool call across streamed deltas.
type pendingCall struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// streamPrimary runs the tools-bound model call, forwarding text deltas as
// token events and accumulating tool-call deltas by index. A mid-stream
// failure returns whatever text and calls arrived before it.
func (c *Controller) streamPrimary(ctx context.Context, request []provider.Message, emit func(Event) bool, threadID string) (string, []*pendingCall, error) {
	ctx, span := obs.StartSpan(ctx, "agent.primary", nil)
	defer span.End()

	stream, err := c.provider.CreateStreaming(ctx, provider.CompletionRequest{
		Model:    c.model,
		Messages: request,
		Tools:    c.registry.Specs(),
	})
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var text strings.Builder
	pending := make(map[int]*pendingCall)

	for {
		chunk, err := stream.Recv()
		if chunk != nil {
			if chunk.Delta != "" {
				text.WriteString(chunk.Delta)
				observability.RecordTokenStreamed()
				if !emit(Event{Type: EventToken, ThreadID: threadID, Content: chunk.Delta}) {
					// Consumer is gone; drain silently so the tail of the
					// turn can still be persisted.
					emit = func(Event) bool { return false }
				}
			}
			for _, d := range chunk.ToolCallDeltas {
				pc, ok := pending[d.Index]
				if !ok {
					pc = &pendingCall{index: d.Index}
					pending[d.Index] = pc
				}
				if d.ID != "" {
					pc.id = d.ID
				}
				if d.FunctionName != "" {
					pc.name = d.FunctionName
				}
				pc.args.WriteString(d.ArgumentDelta)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			span.SetError(err)
			return text.String(), orderedCalls(pending), err
		}
	}

	return text.String(), orderedCalls(pending), nil
}

func orderedCalls(pending map[int]*pendingCall) []*pendingCall {
	calls := make([]*pendingCall, 0, len(pending))
	for _, pc := range pending {
		calls = append(calls, pc)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].index < calls[j].index })
	return calls
}

// dispatchTools invokes the accumulated calls in emission order. Every call
// yields an invocation record whether it succeeded or not; the registry
// converts failures into {"error": ...} results.
func (c *Controller) dispatchTools(ctx context.Context, calls []*pendingCall, emit func(Event) bool, threadID string) []*invocation {
	var invocations []*invocation
	for _, call := range calls {
		if call.name == "" {
			continue
		}
		if call.id == "" {
			call.id = uuid.NewString()
		}
		args := call.args.String()

		emit(Event{Type: EventToolCall, ThreadID: threadID, Tool: call.name, CallID: call.id, Args: args})

		tctx, span := obs.StartSpan(ctx, "agent.tool", map[string]any{"tool": call.name})
		result := c.registry.Invoke(tctx, call.name, args)
		span.End()

		inv := &invocation{callID: call.id, name: call.name, args: args, result: result}
		invocations = append(invocations, inv)

		resultJSON, _ := json.Marshal(result)
		emit(Event{Type: EventToolResult, ThreadID: threadID, Tool: call.name, CallID: call.id, Result: string(resultJSON)})
	}
	return invocations
}

// streamSynthesis runs the tools-unbound follow-up call that grounds the
// final answer in this turn's tool results. Any failure degrades to the
// primary text; the turn never fails here.
func (c *Controller) streamSynthesis(ctx context.Context, userText string, invocations []*invocation, emit func(Event) bool, threadID string) string {
	ctx, span := obs.StartSpan(ctx, "agent.synthesis", nil)
	defer span.End()

	stream, err := c.provider.CreateStreaming(ctx, provider.CompletionRequest{
		Model:    c.model,
		Messages: buildSynthesisPrompt(userText, invocations),
	})
	if err != nil {
		span.SetError(err)
		log.Printf("[agent] turn %s: synthesis: %v", threadID, err)
		return ""
	}
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, err := stream.Recv()
		if chunk != nil && chunk.Delta != "" {
			text.WriteString(chunk.Delta)
			observability.RecordTokenStreamed()
			emit(Event{Type: EventToken, ThreadID: threadID, Content: chunk.Delta})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			span.SetError(err)
			log.Printf("[agent] turn %s: synthesis stream: %v", threadID, err)
			break
		}
	}
	return strings.TrimSpace(text.String())
}

// persist appends messages outside the request's cancellation scope so a
// client disconnect cannot drop what the turn already produced. A store
// failure is logged for operators; the streamed response stands.
func (c *Controller) persist(ctx context.Context, threadID string, msgs []store.Message) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := c.store.AppendMessages(pctx, threadID, msgs); err != nil {
		log.Printf("[agent] turn %s: persist: %v", threadID, err)
		return
	}
	if c.titles != nil {
		c.titles.MaybeGenerate(pctx, threadID)
	}
}

func toolRecord(inv *invocation) store.Message {
	argsValue := json.RawMessage(inv.args)
	if !json.Valid(argsValue) {
		b, _ := json.Marshal(inv.args)
		argsValue = b
	}
	payload, _ := json.Marshal(map[string]any{
		"args":    argsValue,
		"result":  inv.result,
		"call_id": inv.callID,
	})
	return store.Message{
		Role:    store.RoleTool,
		Name:    inv.name,
		CallID:  inv.callID,
		Content: string(payload),
	}
}
