// Package store provides durable session persistence for HashTalk threads.
// A session is the append-only message log of one conversation thread plus
// the metadata the agent loop needs (title, compaction state, version).
package store

import (
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	// RoleHuman is a user-authored message.
	RoleHuman Role = "human"
	// RoleAI is an assistant-authored message.
	RoleAI Role = "ai"
	// RoleTool is a projected tool invocation record.
	RoleTool Role = "tool"
)

// DefaultTitle is the placeholder title a session carries until the title
// generator replaces it.
const DefaultTitle = "New Chat"

// Message is a single entry in a session's message log.
// Tool messages carry the tool name and the call id that correlates the
// record to the invocation that produced it; both are empty otherwise.
type Message struct {
	Role    Role   `json:"role" firestore:"role"`
	Content string `json:"content" firestore:"content"`
	Name    string `json:"name,omitempty" firestore:"name,omitempty"`
	CallID  string `json:"callId,omitempty" firestore:"callId,omitempty"`
}

// Session holds one conversation thread.
//
// Version increments on every append and every replace; ReplaceMessages uses
// it as a compare-and-swap token so a compaction rewrite racing a concurrent
// append fails instead of losing the appended messages.
//
// Summarized is true once the message log starts with a summary pair. It is
// the authoritative marker; the sentinel text on the pair's human message is
// kept for display parity only.
type Session struct {
	ThreadID   string    `json:"threadId" firestore:"threadId"`
	Title      string    `json:"title" firestore:"title"`
	Messages   []Message `json:"messages" firestore:"messages"`
	Summarized bool      `json:"summarized" firestore:"summarized"`
	Version    int64     `json:"version" firestore:"version"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// NewSession creates an empty session for a thread with the default title.
func NewSession(threadID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ThreadID:  threadID,
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	dup := *s
	dup.Messages = make([]Message, len(s.Messages))
	copy(dup.Messages, s.Messages)
	return &dup
}

// Summary is the listing projection of a session.
type Summary struct {
	ThreadID string `json:"threadId"`
	Title    string `json:"title"`
}
