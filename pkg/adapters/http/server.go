// Package http exposes the engine over HTTP: an SSE chat stream plus
// JSON read endpoints for sessions, suggestions, metrics and vitals.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/quartet/api"
	"github.com/aretw0/quartet/internal/logging"
	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

// DefaultAuthToken matches the development default used across the
// service. Override it in any real deployment.
const DefaultAuthToken = "devkey"

// Asker runs one chat request, streaming events to the sink. The root
// quartet.Engine satisfies it.
type Asker interface {
	Ask(ctx context.Context, sessionID, userID, prompt string, sink ports.EventSink) error
}

// Server handles the HTTP surface over an Asker and its Store.
type Server struct {
	asker   Asker
	store   ports.Store
	token   string
	cors    []string
	logger  *slog.Logger
	started time.Time
	version string
}

// Option configures the Server.
type Option func(*Server)

// WithAuthToken sets the token required on /v1 routes. An empty token
// disables authentication entirely.
func WithAuthToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithCORS sets the allowed origins. An empty list or a "*" entry
// allows any origin.
func WithCORS(origins []string) Option {
	return func(s *Server) {
		s.cors = origins
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version string reported by the root endpoint.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewHandler builds the complete HTTP handler: middleware, the chat
// stream, the read endpoints, health, prometheus metrics and the
// OpenAPI document.
func NewHandler(asker Asker, store ports.Store, opts ...Option) http.Handler {
	s := &Server{
		asker:   asker,
		store:   store,
		token:   DefaultAuthToken,
		logger:  logging.NewNop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(allowCORS(s.cors))

	r.Get("/", s.getRoot)
	r.Get("/health", s.getHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", s.getOpenAPI)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/chat/stream", s.streamChat)
		r.Get("/sessions/{sessionId}", s.getSession)
		r.Get("/sessions/{sessionId}/messages", s.getSessionMessages)
		r.Get("/suggestions/{messageId}", s.getMessageSuggestions)
		r.Get("/suggestions/session/{sessionId}", s.getSessionSuggestions)
		r.Get("/metrics/{sessionId}", s.getSessionMetrics)
		r.Get("/vitals", s.getVitals)
	})

	return r
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Prompt    string `json:"prompt"`
}

// streamChat handles POST /v1/chat/stream.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.SessionID == "" || body.Prompt == "" {
		writeError(w, http.StatusBadRequest, "sessionId and prompt are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The request context doubles as the pipeline context: a client
	// disconnect cancels the ask and skips persistence.
	sink := newSSESink(w, flusher)
	if err := s.asker.Ask(r.Context(), body.SessionID, body.UserID, body.Prompt, sink); err != nil {
		s.logger.Warn("chat stream ended with error",
			"sessionId", body.SessionID, "err", err)
	}
}

// getSession handles GET /v1/sessions/{sessionId}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.serverError(w, "get session", err)
		return
	}

	count, err := s.store.CountMessages(r.Context(), sessionID)
	if err != nil {
		s.serverError(w, "count messages", err)
		return
	}

	writeJSON(w, s.logger, map[string]any{
		"sessionId":    sess.SessionID,
		"userId":       sess.UserID,
		"summary":      sess.Summary,
		"messageCount": count,
		"createdAt":    sess.CreatedAt,
		"updatedAt":    sess.UpdatedAt,
	})
}

// getSessionMessages handles GET /v1/sessions/{sessionId}/messages.
func (s *Server) getSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	limit := queryInt(r, "limit", 50)

	msgs, err := s.store.Messages(r.Context(), sessionID, limit)
	if err != nil {
		s.serverError(w, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, s.logger, msgs)
}

type suggestionsResponse struct {
	MessageID   string    `json:"messageId"`
	Suggestions []string  `json:"suggestions"`
	CreatedAt   time.Time `json:"createdAt"`
}

// getMessageSuggestions handles GET /v1/suggestions/{messageId}.
func (s *Server) getMessageSuggestions(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")

	rec, err := s.store.SuggestionsByMessage(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, domain.ErrSuggestionsNotFound) {
			writeError(w, http.StatusNotFound, "Suggestions not found")
			return
		}
		s.serverError(w, "get suggestions", err)
		return
	}

	writeJSON(w, s.logger, suggestionsResponse{
		MessageID:   rec.MessageID,
		Suggestions: rec.Suggestions,
		CreatedAt:   rec.CreatedAt,
	})
}

// getSessionSuggestions handles GET /v1/suggestions/session/{sessionId}.
func (s *Server) getSessionSuggestions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	limit := queryInt(r, "limit", 10)

	recs, err := s.store.SuggestionsBySession(r.Context(), sessionID, limit)
	if err != nil {
		s.serverError(w, "list suggestions", err)
		return
	}

	out := make([]suggestionsResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, suggestionsResponse{
			MessageID:   rec.MessageID,
			Suggestions: rec.Suggestions,
			CreatedAt:   rec.CreatedAt,
		})
	}
	writeJSON(w, s.logger, out)
}

// getSessionMetrics handles GET /v1/metrics/{sessionId}.
func (s *Server) getSessionMetrics(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	sm, err := s.store.SessionMetrics(r.Context(), sessionID)
	if err != nil {
		s.serverError(w, "aggregate metrics", err)
		return
	}
	writeJSON(w, s.logger, sm)
}

type vitalsResponse struct {
	UptimeSeconds     float64  `json:"uptimeSeconds"`
	TotalSessions     int64    `json:"totalSessions"`
	TotalMessages     int64    `json:"totalMessages"`
	TotalToolCalls    int64    `json:"totalToolCalls"`
	AvgResponseTimeMs *float64 `json:"avgResponseTimeMs"`
}

// getVitals handles GET /v1/vitals.
func (s *Server) getVitals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.store.Totals(r.Context())
	if err != nil {
		s.serverError(w, "load totals", err)
		return
	}

	writeJSON(w, s.logger, vitalsResponse{
		UptimeSeconds:     time.Since(s.started).Seconds(),
		TotalSessions:     totals.Sessions,
		TotalMessages:     totals.Messages,
		TotalToolCalls:    totals.ToolCalls,
		AvgResponseTimeMs: totals.AvgResponseTimeMs,
	})
}

// getHealth handles GET /health. It stays open: no auth.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "connected"
	status := "healthy"
	if err := s.store.Ping(r.Context()); err != nil {
		storeStatus = "disconnected"
		status = "unhealthy"
	}

	writeJSON(w, s.logger, map[string]string{
		"status":    status,
		"store":     storeStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// getRoot handles GET /.
func (s *Server) getRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, map[string]string{
		"name":    "quartet",
		"version": s.version,
		"status":  "running",
		"docs":    "/openapi.yaml",
		"health":  "/health",
	})
}

// getOpenAPI handles GET /openapi.yaml.
func (s *Server) getOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/yaml")
	if _, err := w.Write(api.Document); err != nil {
		s.logger.Error("write openapi document failed", "err", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "err", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
