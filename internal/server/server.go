// Package server exposes the chat agent over HTTP: one synchronous turn
// endpoint, one SSE streaming endpoint, and session read endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/hashtalk-dev/hashtalk/internal/agent"
	"github.com/hashtalk-dev/hashtalk/pkg/observability"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

// Config holds the HTTP server's collaborators and limits.
type Config struct {
	Addr       string
	Controller *agent.Controller
	Store      store.Store

	// RatePerSecond and RateBurst bound the chat endpoints per client and
	// globally. Zero disables limiting.
	RatePerSecond float64
	RateBurst     int
}

// Server serves the chat API.
type Server struct {
	httpServer *http.Server
	controller *agent.Controller
	store      store.Store
	limiter    *rateLimiter
}

// New creates the server and its route table.
func New(cfg Config) *Server {
	s := &Server{
		controller: cfg.Controller,
		store:      cfg.Store,
	}
	if cfg.RatePerSecond > 0 {
		s.limiter = newRateLimiter(cfg.RatePerSecond, cfg.RateBurst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /chat", s.limited(s.handleChat))
	mux.HandleFunc("GET /stream-chat", s.limited(s.handleStreamChat))
	mux.HandleFunc("GET /chathistory/{thread_id}", s.handleChatHistory)
	mux.HandleFunc("GET /sessions", s.handleSessions)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withMetrics(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Printf("[server] listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// limited wraps chat handlers with the rate limiter.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(clientID(r)) {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the response code for the request metric.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		observability.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), time.Since(start))
	})
}
