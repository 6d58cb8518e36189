package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tickerlab/finsight/internal/core/domain"
	"github.com/tickerlab/finsight/internal/shell/runner"
)

// cleanupTimeout bounds ephemeral session deletion after the response is
// written, detached from the request context.
const cleanupTimeout = 10 * time.Second

// =============================================================================
// Plain Text Query Handler
// =============================================================================

// handleQuery streams the answer to a one-shot query as plain text. Without
// a session_id the query runs in an ephemeral session that is deleted once
// the stream ends; usage events outlive it.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, http.StatusBadRequest, "query is required", "validation_error")
		return
	}

	sessionID := req.SessionID
	ephemeral := false
	if sessionID == "" {
		session := domain.NewSession("")
		if err := h.store.CreateSession(r.Context(), session); err != nil {
			h.logger.Error("failed to create session", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to create session", "internal_error")
			return
		}
		sessionID = session.ID
		ephemeral = true
	}

	events, err := h.runner.Run(r.Context(), sessionID, req.Query)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)

	wrote := false
	var failure string
	for evt := range events {
		switch evt.Kind {
		case runner.EventContent:
			if !wrote {
				w.WriteHeader(http.StatusOK)
				wrote = true
			}
			if _, err := io.WriteString(w, evt.Content); err != nil {
				// Client gone; keep draining so the run finishes cleanup.
				continue
			}
			if flusher != nil {
				flusher.Flush()
			}
		case runner.EventFailed:
			failure = evt.Error
		}
	}

	if failure != "" && !wrote {
		h.writeError(w, http.StatusInternalServerError, failure, "run_failed")
	}

	if ephemeral {
		h.deleteEphemeralSession(r.Context(), sessionID)
	}
}

// deleteEphemeralSession removes a session created for a one-shot query.
// Runs detached from the request context so client disconnects cannot leave
// the session behind.
func (h *Handler) deleteEphemeralSession(ctx context.Context, sessionID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := h.store.DeleteSession(cleanupCtx, sessionID); err != nil {
		h.logger.Warn("failed to delete ephemeral session", "session_id", sessionID, "error", err)
	}
}

// =============================================================================
// SSE Query Handler
// =============================================================================

// handleQuerySession streams a session-scoped run as server-sent events:
// "content" fragments, "tool_call" progress, one terminal "done" or "error".
func (h *Handler) handleQuerySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported", "internal_error")
		return
	}

	events, err := h.runner.Run(r.Context(), id, req.Query)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for evt := range events {
		switch evt.Kind {
		case runner.EventContent:
			h.writeSSE(w, flusher, "content", ContentEventData{
				RunID:   evt.RunID,
				Content: evt.Content,
			})
		case runner.EventToolCall:
			h.writeSSE(w, flusher, "tool_call", ToolCallEventData{
				RunID:  evt.RunID,
				Agent:  evt.Agent,
				Tool:   evt.Tool,
				Status: evt.Status,
			})
		case runner.EventCompleted:
			h.writeSSE(w, flusher, "done", DoneEventData{Run: runToResponse(evt.Run)})
		case runner.EventFailed:
			h.writeSSE(w, flusher, "error", ErrorEventData{
				RunID: evt.RunID,
				Error: evt.Error,
			})
		}
	}
}

// writeSSE writes one server-sent event and flushes it to the client.
func (h *Handler) writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode stream event", "event", event, "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return
	}
	flusher.Flush()
}

// writeRunError maps runner.Run errors to HTTP responses.
func (h *Handler) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case isNotFound(err):
		h.writeError(w, http.StatusNotFound, "session not found", "session_not_found")
	case errors.Is(err, domain.ErrInvalidRun):
		h.writeError(w, http.StatusBadRequest, "query is required", "validation_error")
	default:
		h.logger.Error("failed to start run", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to start run", "internal_error")
	}
}
