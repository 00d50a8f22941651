package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter frames server-sent events over an http.ResponseWriter and
// flushes after every write so tokens reach the client immediately.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, nil
}

// preamble sets the client's reconnect delay and sends a comment heartbeat
// so proxies start forwarding the response.
func (s *sseWriter) preamble() {
	fmt.Fprint(s.w, "retry: 1000\n\n")
	fmt.Fprint(s.w, ": connected\n\n")
	s.flusher.Flush()
}

func (s *sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
