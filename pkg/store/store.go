package store

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	// ErrSessionNotFound is returned when a thread id has no session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when inserting an already-known thread id.
	ErrSessionExists = errors.New("session already exists")
	// ErrVersionConflict is returned when a replace lost the race against a
	// concurrent write for the same thread id.
	ErrVersionConflict = errors.New("session version conflict")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// Store abstracts session persistence.
// Implementations must be safe for concurrent use.
//
// Writes for one thread id are ordered: an append observed by a reader
// implies all earlier appends for that thread are observed too. Writes for
// different thread ids are independent.
type Store interface {
	// FindByThreadID retrieves a session by thread id.
	// Returns ErrSessionNotFound if the thread is unknown.
	FindByThreadID(ctx context.Context, threadID string) (*Session, error)

	// Insert creates a new session. Returns ErrSessionExists if the thread
	// id is already present.
	Insert(ctx context.Context, sess *Session) error

	// AppendMessages appends messages to a session's log in order and
	// bumps the session version.
	AppendMessages(ctx context.Context, threadID string, msgs []Message) error

	// ReplaceMessages swaps the entire message log, guarded by the version
	// the caller read. Returns ErrVersionConflict when the stored version
	// differs from fromVersion; the caller re-reads and retries.
	// The summarized flag is stored alongside the new log.
	ReplaceMessages(ctx context.Context, threadID string, fromVersion int64, msgs []Message, summarized bool) error

	// SetTitle updates the session title.
	SetTitle(ctx context.Context, threadID, title string) error

	// ListSummaries returns the thread id and title of every session.
	ListSummaries(ctx context.Context) ([]Summary, error)

	// Close releases any resources held by the store.
	Close() error
}
