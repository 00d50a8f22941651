package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is the default for tests and for
// single-node deployments that do not need durability.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// FindByThreadID retrieves a session by thread id.
func (m *MemoryStore) FindByThreadID(ctx context.Context, threadID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	sess, ok := m.sessions[threadID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Insert creates a new session.
func (m *MemoryStore) Insert(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.sessions[sess.ThreadID]; ok {
		return ErrSessionExists
	}

	m.sessions[sess.ThreadID] = sess.Clone()
	return nil
}

// AppendMessages appends messages in order and bumps the version.
func (m *MemoryStore) AppendMessages(ctx context.Context, threadID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	sess, ok := m.sessions[threadID]
	if !ok {
		return ErrSessionNotFound
	}

	sess.Messages = append(sess.Messages, msgs...)
	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// ReplaceMessages swaps the message log if the version still matches.
func (m *MemoryStore) ReplaceMessages(ctx context.Context, threadID string, fromVersion int64, msgs []Message, summarized bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	sess, ok := m.sessions[threadID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Version != fromVersion {
		return ErrVersionConflict
	}

	sess.Messages = make([]Message, len(msgs))
	copy(sess.Messages, msgs)
	sess.Summarized = summarized
	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// SetTitle updates the session title.
func (m *MemoryStore) SetTitle(ctx context.Context, threadID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	sess, ok := m.sessions[threadID]
	if !ok {
		return ErrSessionNotFound
	}

	sess.Title = title
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// ListSummaries returns thread ids and titles, sorted by thread id for
// deterministic output.
func (m *MemoryStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	out := make([]Summary, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, Summary{ThreadID: sess.ThreadID, Title: sess.Title})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out, nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
