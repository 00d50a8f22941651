package agent

// EventType tags the entries a turn emits over its event channel.
type EventType string

const (
	// EventToken is one streamed text fragment.
	EventToken EventType = "token"
	// EventToolCall announces a tool invocation about to run.
	EventToolCall EventType = "tool_call"
	// EventToolResult carries the structured result of a finished invocation.
	EventToolResult EventType = "tool_result"
	// EventMessage carries the complete final text of the turn.
	EventMessage EventType = "message"
	// EventError reports a turn-fatal failure.
	EventError EventType = "error"
	// EventDone terminates the sequence. Always the last event.
	EventDone EventType = "done"
)

// Event is one entry in a turn's ordered output sequence. Tool, CallID,
// Args and Result are set only on tool events.
type Event struct {
	Type     EventType `json:"type"`
	ThreadID string    `json:"thread_id,omitempty"`
	Content  string    `json:"content,omitempty"`
	Tool     string    `json:"tool,omitempty"`
	CallID   string    `json:"call_id,omitempty"`
	Args     string    `json:"args,omitempty"`
	Result   string    `json:"result,omitempty"`
}
