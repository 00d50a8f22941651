package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/hashtalk-dev/hashtalk/pkg/observability"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

type chatResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "hashtalk is running"})
}

// handleChat runs one full turn and returns the final text as JSON.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := s.controller.RunSync(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		log.Printf("[server] chat turn failed: %v", err)
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: res.Content, ThreadID: res.ThreadID})
}

// handleStreamChat runs one turn and forwards its event sequence as
// server-sent events. The client reads token events as they arrive, then a
// final message event and a terminal done event.
func (s *Server) handleStreamChat(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	threadID := r.URL.Query().Get("thread_id")
	if strings.TrimSpace(message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	if threadID == "" {
		writeJSONError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	observability.StreamOpened()
	defer observability.StreamClosed()

	sse.preamble()
	for ev := range s.controller.Run(r.Context(), threadID, message) {
		if err := sse.event(string(ev.Type), ev); err != nil {
			// Client went away; the controller persists best effort and
			// winds down on its own once the context is cancelled.
			log.Printf("[server] stream write for %s: %v", threadID, err)
			return
		}
	}
}

// handleChatHistory returns a session's full stored state.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	sess, err := s.store.FindByThreadID(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("[server] load session %s: %v", threadID, err)
		writeJSONError(w, http.StatusInternalServerError, "could not load session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// handleSessions lists every session's thread id and title.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListSummaries(r.Context())
	if err != nil {
		log.Printf("[server] list sessions: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
