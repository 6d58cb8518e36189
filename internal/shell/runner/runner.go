// Package runner executes queries against the agent team. It drives the
// leader's tool-calling loop, delegates tasks to member agents, streams
// run events to the caller and persists the full run trace.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tickerlab/finsight/internal/core/agent"
	"github.com/tickerlab/finsight/internal/core/domain"
	"github.com/tickerlab/finsight/internal/shell/llm"
	"github.com/tickerlab/finsight/internal/shell/store"
)

// ErrMaxTurns is returned when the model keeps requesting tools past the
// configured turn limit.
var ErrMaxTurns = errors.New("tool call limit exceeded")

// eventBuffer bounds how far the run can get ahead of a slow consumer.
const eventBuffer = 64

// =============================================================================
// Configuration
// =============================================================================

// Config configures the run engine.
type Config struct {
	Model         string  // default model for agents that set none
	Temperature   float32 // sampling temperature for every completion
	MaxTurns      int     // per-agent cap on tool-calling rounds
	HistoryWindow int     // prior messages included in leader context
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Temperature:   0.7,
		MaxTurns:      10,
		HistoryWindow: agent.DefaultHistoryWindow,
	}
}

// =============================================================================
// Runner
// =============================================================================

// Runner executes queries against a team of agents.
type Runner struct {
	chat   llm.ChatStreamer
	store  store.Store
	team   *agent.Team
	config Config
	logger *slog.Logger
}

// NewRunner creates a run engine for the given team.
func NewRunner(chat llm.ChatStreamer, s store.Store, team *agent.Team, config Config, logger *slog.Logger) (*Runner, error) {
	if team == nil {
		return nil, agent.ErrNoMembers
	}
	if err := team.Validate(); err != nil {
		return nil, err
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = 10
	}
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = agent.DefaultHistoryWindow
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		chat:   chat,
		store:  s,
		team:   team,
		config: config,
		logger: logger.With("component", "runner"),
	}, nil
}

// Team returns the team this runner executes against.
func (r *Runner) Team() *agent.Team {
	return r.team
}

// Run executes a query in the given session. It returns a channel of run
// events that is closed once the run reaches a terminal state. The session
// must already exist; cancelling ctx cancels the run.
func (r *Runner) Run(ctx context.Context, sessionID, query string) (<-chan Event, error) {
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	run, err := domain.NewRun(session.ID, query)
	if err != nil {
		return nil, err
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	events := make(chan Event, eventBuffer)
	go r.execute(ctx, session, run, query, events)
	return events, nil
}

func (r *Runner) execute(ctx context.Context, session *domain.Session, run *domain.Run, query string, events chan<- Event) {
	defer close(events)

	logger := r.logger.With("run_id", run.ID, "session_id", session.ID)
	logger.Info("run started", "query_length", len(query))
	send(ctx, events, startedEvent(run.ID))

	history, err := r.prepareInput(ctx, session, query)
	if err != nil {
		r.finishError(ctx, run, "", err, events, logger)
		return
	}

	if err := run.Transition(domain.RunStatusRunning); err != nil {
		r.finishError(ctx, run, "", err, events, logger)
		return
	}
	if err := r.store.UpdateRun(ctx, run); err != nil {
		r.finishError(ctx, run, "", err, events, logger)
		return
	}

	prog := &progress{run: run}
	answer, err := r.leaderLoop(ctx, prog, history, query, events, logger)
	if err != nil {
		r.finishError(ctx, run, answer, err, events, logger)
		return
	}
	r.finishCompleted(ctx, session, run, answer, events, logger)
}

// finishError routes an execution error to the cancelled or failed state.
func (r *Runner) finishError(ctx context.Context, run *domain.Run, partial string, cause error, events chan<- Event, logger *slog.Logger) {
	if isCancellation(cause) || errors.Is(ctx.Err(), context.Canceled) {
		r.finishCancelled(ctx, run, partial, logger)
		return
	}
	r.finishFailed(ctx, run, cause, events, logger)
}

// prepareInput loads the conversation history, persists the user message
// and names the session after its first query.
func (r *Runner) prepareInput(ctx context.Context, session *domain.Session, query string) ([]domain.Message, error) {
	history, err := r.store.ListMessages(ctx, session.ID, store.ListOptions{Limit: 1000})
	if err != nil {
		return nil, err
	}

	msg, err := domain.NewMessage(session.ID, domain.RoleUser, query)
	if err != nil {
		return nil, err
	}
	if err := r.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	if len(history) == 0 && session.Title == domain.DefaultSessionTitle {
		session.Title = domain.DeriveTitle(query)
	}
	session.Touch()
	if err := r.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	return agent.WindowHistory(history, r.config.HistoryWindow), nil
}

// =============================================================================
// Leader Loop
// =============================================================================

// leaderLoop runs the team leader until it produces a final answer. The
// returned string is everything streamed so far, which on error is the
// partial answer.
func (r *Runner) leaderLoop(ctx context.Context, prog *progress, history []domain.Message, query string, events chan<- Event, logger *slog.Logger) (string, error) {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.SystemMessage(agent.LeaderSystemPrompt(r.team)))
	for _, m := range history {
		switch m.Role {
		case domain.RoleUser:
			msgs = append(msgs, llm.UserMessage(m.Content))
		case domain.RoleAssistant:
			msgs = append(msgs, llm.AssistantMessage(m.Content, nil))
		}
	}
	msgs = append(msgs, llm.UserMessage(query))

	tools := r.team.TransferTools()
	run := prog.run

	var answer strings.Builder
	for turn := 0; turn < r.config.MaxTurns; turn++ {
		firstDelta := true
		result, err := r.chat.StreamChat(ctx, llm.Request{
			Model:       r.modelFor(r.team.Model),
			Messages:    msgs,
			Tools:       tools,
			Temperature: r.config.Temperature,
		}, func(delta string) {
			if firstDelta {
				firstDelta = false
				if answer.Len() > 0 {
					answer.WriteString("\n\n")
					send(ctx, events, contentEvent(run.ID, "\n\n"))
				}
			}
			answer.WriteString(delta)
			send(ctx, events, contentEvent(run.ID, delta))
		})
		if err != nil {
			return answer.String(), err
		}

		prog.addUsage(result.Usage)

		if !result.HasToolCalls() {
			return answer.String(), nil
		}

		msgs = append(msgs, llm.AssistantMessage(result.Content, result.ToolCalls))
		replies, err := r.delegate(ctx, prog, result.ToolCalls, events)
		if err != nil {
			return answer.String(), err
		}
		msgs = append(msgs, replies...)

		// Keep the trace visible to run inspection while in flight.
		if err := r.store.UpdateRun(ctx, run); err != nil {
			logger.Warn("failed to persist run trace", "error", err)
		}
	}

	return answer.String(), fmt.Errorf("%w: leader used %d turns", ErrMaxTurns, r.config.MaxTurns)
}

// =============================================================================
// Terminal States
// =============================================================================

func (r *Runner) finishCompleted(ctx context.Context, session *domain.Session, run *domain.Run, answer string, events chan<- Event, logger *slog.Logger) {
	saveCtx, cancel := saveContext(ctx)
	defer cancel()

	if err := run.Complete(answer); err != nil {
		logger.Error("failed to complete run", "error", err)
		return
	}
	r.persistTerminal(saveCtx, session, run, answer, logger)

	send(ctx, events, completedEvent(run))
	logger.Info("run completed",
		"duration_ms", run.Duration().Milliseconds(),
		"total_tokens", run.TotalTokens(),
		"tool_calls", len(run.ToolCalls))
}

func (r *Runner) finishCancelled(ctx context.Context, run *domain.Run, partial string, logger *slog.Logger) {
	saveCtx, cancel := saveContext(ctx)
	defer cancel()

	if err := run.Cancel(partial); err != nil {
		logger.Error("failed to cancel run", "error", err)
		return
	}
	r.persistTerminal(saveCtx, nil, run, "", logger)
	logger.Info("run cancelled", "partial_length", len(partial))
}

func (r *Runner) finishFailed(ctx context.Context, run *domain.Run, cause error, events chan<- Event, logger *slog.Logger) {
	saveCtx, cancel := saveContext(ctx)
	defer cancel()

	logger.Error("run failed", "error", cause)
	if err := run.Fail(cause); err != nil {
		logger.Error("failed to mark run failed", "error", err)
		return
	}
	r.persistTerminal(saveCtx, nil, run, "", logger)
	send(ctx, events, failedEvent(run.ID, cause))
}

// persistTerminal writes the terminal run, the assistant message when there
// is one, the session bump and the run's usage events in one transaction.
func (r *Runner) persistTerminal(ctx context.Context, session *domain.Session, run *domain.Run, assistantContent string, logger *slog.Logger) {
	err := r.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateRun(ctx, run); err != nil {
			return err
		}
		if assistantContent != "" {
			msg, err := domain.NewMessage(run.SessionID, domain.RoleAssistant, assistantContent)
			if err != nil {
				return err
			}
			if err := tx.CreateMessage(ctx, msg); err != nil {
				return err
			}
		}
		if session != nil {
			session.Touch()
			if err := tx.UpdateSession(ctx, session); err != nil {
				return err
			}
		}
		usage, err := domain.EventsForRun(run)
		if err != nil {
			return err
		}
		for _, evt := range usage {
			if err := tx.CreateUsageEvent(ctx, evt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to persist terminal run", "status", run.Status, "error", err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

// progress guards run mutations made from concurrent member loops.
type progress struct {
	mu  sync.Mutex
	run *domain.Run
}

func (p *progress) addUsage(u llm.Usage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.run.AddUsage(u.PromptTokens, u.CompletionTokens)
}

func (p *progress) recordToolCall(rec domain.ToolCallRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.run.RecordToolCall(rec)
}

func (r *Runner) modelFor(override string) string {
	if override != "" {
		return override
	}
	return r.config.Model
}

// send delivers an event unless the consumer is gone.
func send(ctx context.Context, events chan<- Event, evt Event) {
	select {
	case events <- evt:
	case <-ctx.Done():
	}
}

// saveContext detaches from the caller's cancellation so terminal state is
// persisted even when the client disconnects mid-run.
func saveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
