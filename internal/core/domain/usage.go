package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// Usage Event Types
// =============================================================================

// EventType identifies what a usage event measures.
type EventType string

const (
	EventTypePromptTokens     EventType = "tokens.prompt"
	EventTypeCompletionTokens EventType = "tokens.completion"
	EventTypeToolInvocation   EventType = "tool.invocation"
	EventTypeRunCompleted     EventType = "run.completed"
)

// ValidEventTypes lists every event type the reporter will ship.
var ValidEventTypes = []EventType{
	EventTypePromptTokens,
	EventTypeCompletionTokens,
	EventTypeToolInvocation,
	EventTypeRunCompleted,
}

// IsValid returns true if the event type is known.
func (t EventType) IsValid() bool {
	for _, valid := range ValidEventTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// =============================================================================
// Usage Event
// =============================================================================

// UsageEvent is one meterable unit of work attributed to a run. Events are
// written when a run reaches a terminal state and shipped in batches by the
// usage reporter.
type UsageEvent struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	SessionID  string     `json:"session_id"`
	EventType  EventType  `json:"event_type"`
	Quantity   int64      `json:"quantity"`
	Metadata   string     `json:"metadata,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewUsageEvent creates an unreported usage event.
func NewUsageEvent(runID, sessionID string, eventType EventType, quantity int64) (*UsageEvent, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidUsageEvent)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidUsageEvent)
	}
	if !eventType.IsValid() {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidUsageEvent, eventType)
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must be non-negative", ErrInvalidUsageEvent)
	}
	now := time.Now().UTC()
	return &UsageEvent{
		ID:        NewID(EventIDPrefix),
		RunID:     runID,
		SessionID: sessionID,
		EventType: eventType,
		Quantity:  quantity,
		Timestamp: now,
		CreatedAt: now,
	}, nil
}

// WithMetadata attaches a metadata payload, returning the event for chaining.
func (e *UsageEvent) WithMetadata(metadata string) *UsageEvent {
	e.Metadata = metadata
	return e
}

// IsReported returns true once the event has been shipped to the usage sink.
func (e *UsageEvent) IsReported() bool {
	return e.ReportedAt != nil
}

// MarkReported stamps the event as shipped.
func (e *UsageEvent) MarkReported() {
	now := time.Now().UTC()
	e.ReportedAt = &now
}

// EventsForRun derives the usage events a terminal run produces: token
// counts, tool invocation count and a completion marker. Runs that consumed
// nothing produce only the completion marker.
func EventsForRun(run *Run) ([]*UsageEvent, error) {
	if run == nil || !run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: run must be terminal", ErrInvalidUsageEvent)
	}

	var events []*UsageEvent
	add := func(eventType EventType, quantity int64) error {
		if quantity == 0 && eventType != EventTypeRunCompleted {
			return nil
		}
		evt, err := NewUsageEvent(run.ID, run.SessionID, eventType, quantity)
		if err != nil {
			return err
		}
		events = append(events, evt)
		return nil
	}

	if err := add(EventTypePromptTokens, int64(run.PromptTokens)); err != nil {
		return nil, err
	}
	if err := add(EventTypeCompletionTokens, int64(run.CompletionTokens)); err != nil {
		return nil, err
	}
	if err := add(EventTypeToolInvocation, int64(len(run.ToolCalls))); err != nil {
		return nil, err
	}
	if err := add(EventTypeRunCompleted, 1); err != nil {
		return nil, err
	}
	return events, nil
}
