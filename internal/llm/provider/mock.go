package provider

import (
	"context"
	"errors"
	"io"
	"sync"
)

// MockProvider is a scripted provider for testing. Responses and streams are
// consumed in the order they were added; once exhausted a default response is
// returned.
type MockProvider struct {
	name string

	mu                  sync.Mutex
	completionResponses []*CompletionResponse
	streamScripts       [][]*StreamChunk
	errs                []error

	CompletionCalls []CompletionRequest
	StreamCalls     []CompletionRequest
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name implements Provider
func (m *MockProvider) Name() string {
	return m.name
}

// AddCompletionResponse queues a completion response
func (m *MockProvider) AddCompletionResponse(resp *CompletionResponse) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionResponses = append(m.completionResponses, resp)
	return m
}

// AddStreamChunks queues one scripted stream
func (m *MockProvider) AddStreamChunks(chunks []*StreamChunk) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamScripts = append(m.streamScripts, chunks)
	return m
}

// AddError queues an error; it is returned by the next call of either kind
func (m *MockProvider) AddError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return m
}

func (m *MockProvider) nextError() error {
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

// CreateCompletion implements Provider
func (m *MockProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompletionCalls = append(m.CompletionCalls, req)

	if err := m.nextError(); err != nil {
		return nil, err
	}

	if len(m.completionResponses) > 0 {
		resp := m.completionResponses[0]
		m.completionResponses = m.completionResponses[1:]
		return resp, nil
	}

	return &CompletionResponse{Content: "mock response", FinishReason: "stop"}, nil
}

// CreateStreaming implements Provider
func (m *MockProvider) CreateStreaming(ctx context.Context, req CompletionRequest) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StreamCalls = append(m.StreamCalls, req)

	if err := m.nextError(); err != nil {
		return nil, err
	}

	var chunks []*StreamChunk
	if len(m.streamScripts) > 0 {
		chunks = m.streamScripts[0]
		m.streamScripts = m.streamScripts[1:]
	} else {
		chunks = []*StreamChunk{
			{Delta: "mock "},
			{Delta: "stream", FinishReason: "stop"},
		}
	}

	return &MockStream{chunks: chunks}, nil
}

// MockStream replays a fixed sequence of chunks.
type MockStream struct {
	chunks []*StreamChunk
	index  int
	closed bool
}

// Recv implements Stream
func (s *MockStream) Recv() (*StreamChunk, error) {
	if s.closed {
		return nil, errors.New("stream closed")
	}
	if s.index >= len(s.chunks) {
		return &StreamChunk{FinishReason: "stop"}, io.EOF
	}
	chunk := s.chunks[s.index]
	s.index++
	return chunk, nil
}

// Close implements Stream
func (s *MockStream) Close() error {
	s.closed = true
	return nil
}
