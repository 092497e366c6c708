package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/internal/sanitize"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

// Server exposes an IntakeService over JSON and streams step diffs over SSE.
type Server struct {
	Service ports.IntakeService
	Streams *StreamManager
	logger  *slog.Logger
	metrics http.Handler
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// IngestRequest is the body of POST /sessions/{id}/slots/{slot}.
type IngestRequest struct {
	Value any `json:"value"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Slot  string `json:"slot,omitempty"`
}

// NewHandler creates a new HTTP handler for the service.
func NewHandler(svc ports.IntakeService, opts ...Option) http.Handler {
	server := &Server{
		Service: svc,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	if server.metrics != nil {
		r.Method(http.MethodGet, "/metrics", server.metrics)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", server.CreateSession)
		r.Get("/", server.ListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", server.GetSession)
			r.Delete("/", server.DeleteSession)
			r.Post("/slots/{slot}", server.Ingest)
			r.Post("/lookup", server.Lookup)
			r.Post("/lookup/skip", server.SkipLookup)
			r.Post("/next", server.Next)
			r.Get("/events", server.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateSession handles POST /sessions.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	step, err := s.Service.Create(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, step)
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Service.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.Service.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ingest handles POST /sessions/{id}/slots/{slot}.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var body IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "bad_request"})
		s.logger.Warn("Ingest: Invalid request body", "err", err)
		return
	}

	// Sanitize Input (Global Policy)
	input, err := sanitize.Value(body.Value)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid input: %v", err), Code: "bad_request"})
		s.logger.Warn("Ingest: Input rejected", "err", err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	step, err := s.Service.Ingest(r.Context(), sessionID, chi.URLParam(r, "slot"), input)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.publish(step)
	s.writeJSON(w, http.StatusOK, step)
}

// Lookup handles POST /sessions/{id}/lookup.
func (s *Server) Lookup(w http.ResponseWriter, r *http.Request) {
	step, err := s.Service.Lookup(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.publish(step)
	s.writeJSON(w, http.StatusOK, step)
}

// SkipLookup handles POST /sessions/{id}/lookup/skip.
func (s *Server) SkipLookup(w http.ResponseWriter, r *http.Request) {
	step, err := s.Service.SkipLookup(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.publish(step)
	s.writeJSON(w, http.StatusOK, step)
}

// Next handles POST /sessions/{id}/next.
func (s *Server) Next(w http.ResponseWriter, r *http.Request) {
	step, err := s.Service.Next(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.publish(step)
	s.writeJSON(w, http.StatusOK, step)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "intake-http",
		"version": strings.TrimSpace(intake.Version),
	})
}

// publish broadcasts the diff of a step to the session subscribers.
func (s *Server) publish(step *domain.Step) {
	if step == nil || step.Diff == nil {
		return
	}
	bytes, err := json.Marshal(step.Diff)
	if err != nil {
		s.logger.Error("diff encode failed", "session_id", step.SessionID, "err", err)
		return
	}
	s.Streams.Broadcast(step.SessionID, string(bytes))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// fail maps engine errors to status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, resp)
}

func classify(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var verr *domain.ValidationError
	var lerr *domain.LookupError
	switch {
	case errors.As(err, &verr):
		resp.Code, resp.Slot, resp.Error = "validation_failed", verr.Slot, verr.Message
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &lerr):
		resp.Code = "lookup_failed"
		return http.StatusBadGateway, resp
	case errors.Is(err, domain.ErrSessionNotFound):
		resp.Code = "session_not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrUnknownSlot):
		resp.Code = "unknown_slot"
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrMissingInput):
		resp.Code = "missing_input"
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrNotIngestible):
		resp.Code = "not_ingestible"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrSlotIrrelevant):
		resp.Code = "slot_irrelevant"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrDependencyPending):
		resp.Code = "dependency_pending"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrLookupInFlight):
		resp.Code = "lookup_in_flight"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrLookupKeyUnresolved):
		resp.Code = "lookup_key_unresolved"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrNoProvider):
		resp.Code = "no_provider"
		return http.StatusNotImplemented, resp
	}
	resp.Code = "internal"
	return http.StatusInternalServerError, resp
}

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if subs, ok := sm.subscribers[sessionID]; ok {
		for ch := range subs {
			select {
			case ch <- msg:
			default:
				// Drop message if channel is full (slow client)
				slog.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
			}
		}
	}
}

// SubscribeEvents handles GET /sessions/{id}/events (SSE).
// The optional watch query (resolved, entered, lookup) filters the diffs sent.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.Service.Snapshot(r.Context(), sessionID); err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to Session Updates", "session_id", sessionID)
	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	// Parse 'watch' filter
	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		watchList = strings.Split(watch, ",")
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !watched(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// watched reports whether the diff touches any watched field.
func watched(msg string, watchList []string) bool {
	var diff domain.SessionDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range watchList {
		switch strings.TrimSpace(field) {
		case "resolved":
			if len(diff.Resolved) > 0 {
				return true
			}
		case "entered":
			if len(diff.Entered) > 0 {
				return true
			}
		case "lookup":
			if diff.LookupCompleted != nil {
				return true
			}
		}
	}
	return false
}
