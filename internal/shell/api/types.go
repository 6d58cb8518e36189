package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// QueryRequest is the request body for query endpoints.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// StatusResponse is the root endpoint response.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SessionResponse is the response for session operations.
type SessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListSessionsResponse is the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// MessageResponse is one transcript entry.
type MessageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMessagesResponse is the response for listing session messages.
type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ToolCallResponse is one delegation or tool invocation trace entry.
type ToolCallResponse struct {
	Agent      string    `json:"agent"`
	Tool       string    `json:"tool"`
	Arguments  string    `json:"arguments,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// RunResponse is the response for run inspection.
type RunResponse struct {
	ID               string             `json:"id"`
	SessionID        string             `json:"session_id"`
	Status           string             `json:"status"`
	Input            string             `json:"input"`
	Output           string             `json:"output,omitempty"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	PromptTokens     int                `json:"prompt_tokens"`
	CompletionTokens int                `json:"completion_tokens"`
	TotalTokens      int                `json:"total_tokens"`
	ToolCalls        []ToolCallResponse `json:"tool_calls"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	StartedAt        *time.Time         `json:"started_at,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	DurationMS       int64              `json:"duration_ms"`
}

// ListRunsResponse is the response for listing session runs.
type ListRunsResponse struct {
	Runs   []RunResponse `json:"runs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// =============================================================================
// Stream Event Payloads
// =============================================================================

// ContentEventData is the payload of an SSE "content" event.
type ContentEventData struct {
	RunID   string `json:"run_id"`
	Content string `json:"content"`
}

// ToolCallEventData is the payload of an SSE "tool_call" event.
type ToolCallEventData struct {
	RunID  string `json:"run_id"`
	Agent  string `json:"agent"`
	Tool   string `json:"tool"`
	Status string `json:"status"`
}

// DoneEventData is the payload of an SSE "done" event.
type DoneEventData struct {
	Run RunResponse `json:"run"`
}

// ErrorEventData is the payload of an SSE "error" event.
type ErrorEventData struct {
	RunID string `json:"run_id,omitempty"`
	Error string `json:"error"`
}
