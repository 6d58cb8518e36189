package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// Run Status State Machine
// =============================================================================

// RunStatus represents the lifecycle state of a query run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// validTransitions defines the allowed run state transitions.
// Completed, failed and cancelled are terminal.
var validTransitions = map[RunStatus][]RunStatus{
	RunStatusPending:   {RunStatusRunning, RunStatusFailed, RunStatusCancelled},
	RunStatusRunning:   {RunStatusCompleted, RunStatusFailed, RunStatusCancelled},
	RunStatusCompleted: {},
	RunStatusFailed:    {},
	RunStatusCancelled: {},
}

// ValidateTransition checks whether a run may move from one status to another.
func ValidateTransition(from, to RunStatus) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %q to %q", ErrInvalidTransition, from, to)
}

// IsTerminal returns true if no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// =============================================================================
// Run
// =============================================================================

// Run records a single execution of a query against the agent team: the
// input, the final answer or error, token usage and the tool trace.
type Run struct {
	ID               string           `json:"id"`
	SessionID        string           `json:"session_id"`
	Status           RunStatus        `json:"status"`
	Input            string           `json:"input"`
	Output           string           `json:"output,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	PromptTokens     int              `json:"prompt_tokens"`
	CompletionTokens int              `json:"completion_tokens"`
	ToolCalls        []ToolCallRecord `json:"tool_calls,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// NewRun creates a pending run for a query in the given session.
func NewRun(sessionID, input string) (*Run, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidRun)
	}
	if input == "" {
		return nil, fmt.Errorf("%w: input is required", ErrInvalidRun)
	}
	now := time.Now().UTC()
	return &Run{
		ID:        NewID(RunIDPrefix),
		SessionID: sessionID,
		Status:    RunStatusPending,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition moves the run to a new status, enforcing the state machine.
func (r *Run) Transition(to RunStatus) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.Status = to
	r.UpdatedAt = now
	switch to {
	case RunStatusRunning:
		r.StartedAt = &now
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		r.CompletedAt = &now
	}
	return nil
}

// Complete marks the run completed with its final answer.
func (r *Run) Complete(output string) error {
	if err := r.Transition(RunStatusCompleted); err != nil {
		return err
	}
	r.Output = output
	return nil
}

// Fail marks the run failed with the error that stopped it.
func (r *Run) Fail(cause error) error {
	if err := r.Transition(RunStatusFailed); err != nil {
		return err
	}
	if cause != nil {
		r.ErrorMessage = cause.Error()
	}
	return nil
}

// Cancel marks the run cancelled, keeping any partial output produced so far.
func (r *Run) Cancel(partial string) error {
	if err := r.Transition(RunStatusCancelled); err != nil {
		return err
	}
	r.Output = partial
	return nil
}

// RecordToolCall appends a tool invocation to the run's trace.
func (r *Run) RecordToolCall(rec ToolCallRecord) {
	r.ToolCalls = append(r.ToolCalls, rec)
	r.UpdatedAt = time.Now().UTC()
}

// AddUsage accumulates token counts reported by the model provider.
func (r *Run) AddUsage(promptTokens, completionTokens int) {
	r.PromptTokens += promptTokens
	r.CompletionTokens += completionTokens
}

// TotalTokens returns the combined prompt and completion token count.
func (r *Run) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Duration returns how long the run executed, or zero if it never started.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return end.Sub(*r.StartedAt)
}

// =============================================================================
// Tool Call Trace
// =============================================================================

// ToolCallRecord captures one tool invocation made during a run, including
// delegations from the team leader to a member agent.
type ToolCallRecord struct {
	Agent      string    `json:"agent"`
	Tool       string    `json:"tool"`
	Arguments  string    `json:"arguments,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// NewToolCallRecord creates a trace entry for a tool invocation.
func NewToolCallRecord(agent, tool, arguments string) ToolCallRecord {
	return ToolCallRecord{
		Agent:     agent,
		Tool:      tool,
		Arguments: arguments,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the record with its duration and outcome.
func (t ToolCallRecord) Finish(err error) ToolCallRecord {
	t.DurationMS = time.Since(t.StartedAt).Milliseconds()
	if err != nil {
		t.Error = err.Error()
	}
	return t
}
