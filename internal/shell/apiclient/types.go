package apiclient

import (
	"fmt"
	"time"
)

// =============================================================================
// Wire Types
// =============================================================================

// Session mirrors the API session resource.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message mirrors the API message resource.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCall mirrors one tool invocation trace entry.
type ToolCall struct {
	Agent      string    `json:"agent"`
	Tool       string    `json:"tool"`
	Arguments  string    `json:"arguments,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Run mirrors the API run resource.
type Run struct {
	ID               string     `json:"id"`
	SessionID        string     `json:"session_id"`
	Status           string     `json:"status"`
	Input            string     `json:"input"`
	Output           string     `json:"output,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	TotalTokens      int        `json:"total_tokens"`
	ToolCalls        []ToolCall `json:"tool_calls"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DurationMS       int64      `json:"duration_ms"`
}

// ReadyStatus mirrors the readiness probe response.
type ReadyStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type createSessionRequest struct {
	Title string `json:"title,omitempty"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type listSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type listMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type listRunsResponse struct {
	Runs []Run `json:"runs"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// =============================================================================
// Stream Events
// =============================================================================

// Stream event types delivered by Query.
const (
	EventContent  = "content"
	EventToolCall = "tool_call"
	EventDone     = "done"
	EventError    = "error"
)

// StreamEvent is one decoded server-sent event from a query stream. Only
// the fields relevant to the type are set.
type StreamEvent struct {
	Type    string
	RunID   string
	Content string
	Agent   string
	Tool    string
	Status  string
	Run     *Run
	Err     string
}

// =============================================================================
// Errors
// =============================================================================

// APIError is a non-2xx response from the Finsight API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether the error is a 404 from the API.
func (e *APIError) IsNotFound() bool {
	return e.Status == 404
}
