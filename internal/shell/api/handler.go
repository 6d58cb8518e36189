// Package api provides HTTP handlers for the Finsight API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tickerlab/finsight/internal/core/domain"
	authmw "github.com/tickerlab/finsight/internal/shell/api/middleware"
	"github.com/tickerlab/finsight/internal/shell/api/openapi"
	"github.com/tickerlab/finsight/internal/shell/runner"
	"github.com/tickerlab/finsight/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Config holds configuration for the API handler.
type Config struct {
	// AuthToken enables static bearer-token auth on every endpoint except
	// the root, health and readiness probes. Empty leaves the API open.
	AuthToken string

	// LLMConfigured reports whether the model provider has an API key. The
	// readiness probe fails without one since every query would fail.
	LLMConfigured bool
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	store   store.Store
	runner  *runner.Runner
	config  Config
	openapi *openapi.Generator
	logger  *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, run *runner.Runner, cfg Config, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		store:   s,
		runner:  run,
		config:  cfg,
		openapi: buildOpenAPI(),
		logger:  l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)
	if h.config.AuthToken != "" {
		r.Use(authmw.StaticBearer(h.config.AuthToken, h.logger))
	}

	// Service endpoints
	r.Get("/", h.handleRoot)
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Post("/query", h.handleQuery)
	r.Get("/openapi.json", h.openapi.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.handleCreateSession)
			r.Get("/", h.handleListSessions)
			r.Get("/{id}", h.handleGetSession)
			r.Delete("/{id}", h.handleDeleteSession)
			r.Get("/{id}/messages", h.handleListMessages)
			r.Get("/{id}/runs", h.handleListRuns)
			r.Post("/{id}/query", h.handleQuerySession)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/{id}", h.handleGetRun)
		})
	})

	return r
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Service Handlers
// =============================================================================

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	// Check database (implicit - if we got here, store was created)
	checks["database"] = "ok"

	if !h.config.LLMConfigured {
		checks["llm"] = "not_configured"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["llm"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Session Handlers
// =============================================================================

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
			return
		}
	}

	session := domain.NewSession("")
	if req.Title != "" {
		session.Title = req.Title
	}

	if err := h.store.CreateSession(r.Context(), session); err != nil {
		h.logger.Error("failed to create session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create session", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusCreated, sessionToResponse(session))
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOptions(r)

	sessions, err := h.store.ListSessions(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list sessions", "internal_error")
		return
	}

	resp := ListSessionsResponse{
		Sessions: make([]SessionResponse, 0, len(sessions)),
		Total:    len(sessions),
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	for i := range sessions {
		resp.Sessions = append(resp.Sessions, sessionToResponse(&sessions[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "session not found", "session_not_found")
			return
		}
		h.logger.Error("failed to get session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get session", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, sessionToResponse(session))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "session not found", "session_not_found")
			return
		}
		h.logger.Error("failed to delete session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete session", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	opts := parseListOptions(r)

	if _, err := h.store.GetSession(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "session not found", "session_not_found")
			return
		}
		h.logger.Error("failed to get session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get session", "internal_error")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), id, opts)
	if err != nil {
		h.logger.Error("failed to list messages", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list messages", "internal_error")
		return
	}

	resp := ListMessagesResponse{
		Messages: make([]MessageResponse, 0, len(messages)),
		Total:    len(messages),
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	for i := range messages {
		resp.Messages = append(resp.Messages, messageToResponse(&messages[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Run Handlers
// =============================================================================

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "run not found", "run_not_found")
			return
		}
		h.logger.Error("failed to get run", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, runToResponse(run))
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	opts := parseListOptions(r)

	if _, err := h.store.GetSession(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "session not found", "session_not_found")
			return
		}
		h.logger.Error("failed to get session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get session", "internal_error")
		return
	}

	runs, err := h.store.ListRunsBySession(r.Context(), id, opts)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}

	resp := ListRunsResponse{
		Runs:   make([]RunResponse, 0, len(runs)),
		Total:  len(runs),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for i := range runs {
		resp.Runs = append(resp.Runs, runToResponse(&runs[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func parseListOptions(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	return opts.Normalize()
}

func sessionToResponse(s *domain.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func messageToResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func runToResponse(run *domain.Run) RunResponse {
	resp := RunResponse{
		ID:               run.ID,
		SessionID:        run.SessionID,
		Status:           string(run.Status),
		Input:            run.Input,
		Output:           run.Output,
		ErrorMessage:     run.ErrorMessage,
		PromptTokens:     run.PromptTokens,
		CompletionTokens: run.CompletionTokens,
		TotalTokens:      run.TotalTokens(),
		ToolCalls:        make([]ToolCallResponse, 0, len(run.ToolCalls)),
		CreatedAt:        run.CreatedAt,
		UpdatedAt:        run.UpdatedAt,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.CompletedAt,
		DurationMS:       run.Duration().Milliseconds(),
	}
	for _, tc := range run.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCallResponse{
			Agent:      tc.Agent,
			Tool:       tc.Tool,
			Arguments:  tc.Arguments,
			DurationMS: tc.DurationMS,
			Error:      tc.Error,
			StartedAt:  tc.StartedAt,
		})
	}
	return resp
}

func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
