package runner

import (
	"github.com/tickerlab/finsight/internal/core/domain"
)

// EventKind identifies what a run event carries.
type EventKind string

const (
	// EventStarted is emitted once, after the run is persisted.
	EventStarted EventKind = "started"
	// EventContent carries one leader text fragment.
	EventContent EventKind = "content"
	// EventToolCall reports a tool invocation starting or finishing.
	EventToolCall EventKind = "tool_call"
	// EventCompleted carries the terminal run with its usage.
	EventCompleted EventKind = "completed"
	// EventFailed reports the error that stopped the run.
	EventFailed EventKind = "failed"
)

// Tool call statuses for EventToolCall events.
const (
	ToolStatusStarted   = "started"
	ToolStatusCompleted = "completed"
	ToolStatusFailed    = "failed"
)

// Event is one item of a run's event stream. Only the fields relevant to
// the kind are set.
type Event struct {
	Kind    EventKind   `json:"kind"`
	RunID   string      `json:"run_id,omitempty"`
	Content string      `json:"content,omitempty"`
	Agent   string      `json:"agent,omitempty"`
	Tool    string      `json:"tool,omitempty"`
	Status  string      `json:"status,omitempty"`
	Error   string      `json:"error,omitempty"`
	Run     *domain.Run `json:"run,omitempty"`
}

func startedEvent(runID string) Event {
	return Event{Kind: EventStarted, RunID: runID}
}

func contentEvent(runID, delta string) Event {
	return Event{Kind: EventContent, RunID: runID, Content: delta}
}

func toolCallEvent(runID, agentName, tool, status string) Event {
	return Event{Kind: EventToolCall, RunID: runID, Agent: agentName, Tool: tool, Status: status}
}

func completedEvent(run *domain.Run) Event {
	return Event{Kind: EventCompleted, RunID: run.ID, Run: run}
}

func failedEvent(runID string, err error) Event {
	evt := Event{Kind: EventFailed, RunID: runID}
	if err != nil {
		evt.Error = err.Error()
	}
	return evt
}
