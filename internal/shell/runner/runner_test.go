package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlab/finsight/internal/core/agent"
	"github.com/tickerlab/finsight/internal/core/domain"
	"github.com/tickerlab/finsight/internal/core/toolkit"
	"github.com/tickerlab/finsight/internal/shell/llm"
	"github.com/tickerlab/finsight/internal/shell/store"
)

func TestRunner_Run_DirectAnswer(t *testing.T) {
	chat := &scriptedChat{steps: []scriptStep{
		{content: "Markets closed mixed today.", usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}},
	}}
	r, st, session := setupRunnerTest(t, chat, nil)
	ctx := context.Background()

	events, err := r.Run(ctx, session.ID, "how did markets do today?")
	require.NoError(t, err)

	collected := collectEvents(t, events)
	require.NotEmpty(t, collected)
	assert.Equal(t, EventStarted, collected[0].Kind)
	assert.Equal(t, EventCompleted, collected[len(collected)-1].Kind)
	assert.Equal(t, "Markets closed mixed today.", joinContent(collected))

	run, err := st.GetRun(ctx, collected[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, "Markets closed mixed today.", run.Output)
	assert.Equal(t, 10, run.PromptTokens)
	assert.Equal(t, 5, run.CompletionTokens)

	messages, err := st.ListMessages(ctx, session.ID, store.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, "how did markets do today?", messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.Equal(t, "Markets closed mixed today.", messages[1].Content)

	// First query names the session.
	got, err := st.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "how did markets do today?", got.Title)

	// Usage events: prompt tokens, completion tokens and the run marker.
	usage, err := st.GetUnreportedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, usage, 3)
}

func TestRunner_Run_LeaderRequestShape(t *testing.T) {
	chat := &scriptedChat{steps: []scriptStep{{content: "done"}}}
	r, _, session := setupRunnerTest(t, chat, nil)

	events, err := r.Run(context.Background(), session.ID, "hello")
	require.NoError(t, err)
	collectEvents(t, events)

	require.Len(t, chat.Requests(), 1)
	req := chat.Requests()[0]

	require.NotEmpty(t, req.Messages)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "You are the leader of the Finance Research Team team")
	assert.Equal(t, llm.RoleUser, req.Messages[len(req.Messages)-1].Role)
	assert.Equal(t, "hello", req.Messages[len(req.Messages)-1].Content)

	require.Len(t, req.Tools, 2)
	assert.Equal(t, "transfer_task_to_web_search_agent", req.Tools[0].Name)
	assert.Equal(t, "transfer_task_to_finance_ai_agent", req.Tools[1].Name)
}

func TestRunner_Run_IncludesHistory(t *testing.T) {
	chat := &scriptedChat{steps: []scriptStep{{content: "again: 42"}}}
	r, st, session := setupRunnerTest(t, chat, nil)
	ctx := context.Background()

	for _, m := range []struct {
		role    domain.Role
		content string
	}{
		{domain.RoleUser, "what is the answer?"},
		{domain.RoleAssistant, "42"},
	} {
		msg, err := domain.NewMessage(session.ID, m.role, m.content)
		require.NoError(t, err)
		require.NoError(t, st.CreateMessage(ctx, msg))
	}

	events, err := r.Run(ctx, session.ID, "repeat that")
	require.NoError(t, err)
	collectEvents(t, events)

	req := chat.Requests()[0]
	// system + 2 history + current query
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "what is the answer?", req.Messages[1].Content)
	assert.Equal(t, llm.RoleAssistant, req.Messages[2].Role)
	assert.Equal(t, "42", req.Messages[2].Content)
	assert.Equal(t, "repeat that", req.Messages[3].Content)
}

func TestRunner_Run_Delegation(t *testing.T) {
	transferCall := llm.ToolCall{
		ID:        "call_1",
		Name:      "transfer_task_to_finance_ai_agent",
		Arguments: `{"task_description":"Get the NVDA price.","additional_information":"Use USD."}`,
	}
	chat := &scriptedChat{steps: []scriptStep{
		{toolCalls: []llm.ToolCall{transferCall}, usage: llm.Usage{PromptTokens: 20}},
		{content: "NVDA trades at 500 USD.", usage: llm.Usage{PromptTokens: 15, CompletionTokens: 8}},
		{content: "NVDA is at 500 USD.", usage: llm.Usage{PromptTokens: 30, CompletionTokens: 12}},
	}}
	r, st, session := setupRunnerTest(t, chat, nil)
	ctx := context.Background()

	events, err := r.Run(ctx, session.ID, "price of NVDA?")
	require.NoError(t, err)
	collected := collectEvents(t, events)

	toolEvents := eventsOfKind(collected, EventToolCall)
	require.Len(t, toolEvents, 2)
	assert.Equal(t, ToolStatusStarted, toolEvents[0].Status)
	assert.Equal(t, ToolStatusCompleted, toolEvents[1].Status)
	assert.Equal(t, "Finance AI Agent", toolEvents[0].Agent)
	assert.Equal(t, "transfer_task_to_finance_ai_agent", toolEvents[0].Tool)

	// Member content is not streamed; only the leader's final answer is.
	assert.Equal(t, "NVDA is at 500 USD.", joinContent(collected))

	requests := chat.Requests()
	require.Len(t, requests, 3)

	// The member saw its own system prompt and the assembled task.
	memberReq := requests[1]
	assert.Contains(t, memberReq.Messages[0].Content, "You are Finance AI Agent")
	assert.Equal(t, "Get the NVDA price.\n\nAdditional information: Use USD.", memberReq.Messages[1].Content)

	// The leader's follow-up carries the member's answer as a tool result.
	followUp := requests[2]
	last := followUp.Messages[len(followUp.Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Equal(t, "NVDA trades at 500 USD.", last.Content)

	run, err := st.GetRun(ctx, collected[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 65, run.PromptTokens)
	assert.Equal(t, 20, run.CompletionTokens)
	require.Len(t, run.ToolCalls, 1)
	assert.Equal(t, "Finance AI Agent", run.ToolCalls[0].Agent)
	assert.Equal(t, "transfer_task_to_finance_ai_agent", run.ToolCalls[0].Tool)
	assert.Empty(t, run.ToolCalls[0].Error)
}

func TestRunner_Run_MemberUsesTool(t *testing.T) {
	chat := &scriptedChat{steps: []scriptStep{
		{toolCalls: []llm.ToolCall{{
			ID:        "call_1",
			Name:      "transfer_task_to_finance_ai_agent",
			Arguments: `{"task_description":"Price of AAPL"}`,
		}}},
		{toolCalls: []llm.ToolCall{{
			ID:        "call_2",
			Name:      "stock_price",
			Arguments: `{"ticker":"AAPL"}`,
		}}},
		{content: "AAPL is at 230.50 USD."},
		{content: "Apple trades at 230.50 USD."},
	}}

	invoked := false
	kit := toolkit.New("finance_tools")
	kit.MustRegister(toolkit.Tool{
		Name:        "stock_price",
		Description: "Get the current price.",
		Parameters:  toolkit.TickerSchema(),
		Invoke: func(ctx context.Context, args toolkit.Arguments) (string, error) {
			invoked = true
			assert.Equal(t, "AAPL", args.String("ticker"))
			return "AAPL: 230.50 USD", nil
		},
	})

	r, st, session := setupRunnerTest(t, chat, kit)
	ctx := context.Background()

	events, err := r.Run(ctx, session.ID, "price of AAPL?")
	require.NoError(t, err)
	collected := collectEvents(t, events)

	assert.True(t, invoked)

	// The member's follow-up request carries the tool output.
	requests := chat.Requests()
	require.Len(t, requests, 4)
	memberFollowUp := requests[2]
	last := memberFollowUp.Messages[len(memberFollowUp.Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "AAPL: 230.50 USD", last.Content)

	run, err := st.GetRun(ctx, collected[0].RunID)
	require.NoError(t, err)
	require.Len(t, run.ToolCalls, 2)
	assert.Equal(t, "stock_price", run.ToolCalls[0].Tool)
	assert.Equal(t, "transfer_task_to_finance_ai_agent", run.ToolCalls[1].Tool)
}

func TestRunner_Run_ToolErrorBecomesResult(t *testing.T) {
	chat := &scriptedChat{steps: []scriptStep{
		{toolCalls: []llm.ToolCall{{
			ID:        "call_1",
			Name:      "transfer_task_to_finance_ai_agent",
			Arguments: `{"task_description":"Price of AAPL"}`,
		}}},
		{toolCalls: []llm.ToolCall{{
			ID:        "call_2",
			Name:      "stock_price",
			Arguments: `{"ticker":"AAPL"}`,
		}}},
		{content: "The price source is unavailable right now."},
		{content: "Sorry, the data source is unavailable."},
	}}

	kit := toolkit.New("finance_tools")
	kit.MustRegister(toolkit.Tool{
		Name:        "stock_price",
		Description: "Get the current price.",
		Parameters:  toolkit.TickerSchema(),
		Invoke: func(ctx context.Context, args toolkit.Arguments) (string, error) {
			return "", errors.New("upstream timeout")
		},
	})

	r, st, session := setupRunnerTest(t, chat, kit)
	ctx := context.Background()

	events, err := r.Run(ctx, session.ID, "price of AAPL?")
	require.NoError(t, err)
	collected := collectEvents(t, events)

	// The failure is rendered into the tool result so the model can react.
	memberFollowUp := chat.Requests()[2]
	last := memberFollowUp.Messages[len(memberFollowUp.Messages)-1]
	assert.Equal(t, "Error: upstream timeout", last.Content)

	run, err := st.GetRun(ctx, collected[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	require.Len(t, run.ToolCalls, 2)
	assert.Equal(t, "upstream timeout", run.ToolCalls[0].Error)

	toolEvents := eventsOfKind(collected, EventToolCall)
	var failed []Event
	for _, evt := range toolEvents {
		if evt.Status == ToolStatusFailed {
			failed = append(failed, evt)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "stock_price", failed[0].Tool)
}

func TestRunner_Run_ParallelDelegationsKeepCallOrder(t *testing.T) {
	calls := []llm.ToolCall{
		{ID: "call_web", Name: "transfer_task_to_web_search_agent", Arguments: `{"task_description":"Find NVDA news"}`},
		{ID: "call_fin", Name: "transfer_task_to_finance_ai_agent", Arguments: `{"task_description":"Get NVDA price"}`},
	}
	chat := &handlerChat{handler: func(req llm.Request) (*llm.Result, error) {
		system := req.Messages[0].Content
		switch {
		case strings.Contains(system, "team leader") || strings.Contains(system, "leader of"):
			if len(req.Messages) > 3 {
				return &llm.Result{Content: "combined answer", FinishReason: "stop"}, nil
			}
			return &llm.Result{ToolCalls: calls, FinishReason: "tool_calls"}, nil
		case strings.Contains(system, "Web Search Agent"):
			// Slowest member finishes last; call order must still win.
			time.Sleep(30 * time.Millisecond)
			return &llm.Result{Content: "web findings", FinishReason: "stop"}, nil
		default:
			return &llm.Result{Content: "finance findings", FinishReason: "stop"}, nil
		}
	}}

	r, st, session := setupRunnerTest(t, chat, nil)
	ctx := context.Background()

	events, err := r.Run(ctx, session.ID, "NVDA news and price")
	require.NoError(t, err)
	collected := collectEvents(t, events)

	// Both delegations are announced before either completes.
	toolEvents := eventsOfKind(collected, EventToolCall)
	require.Len(t, toolEvents, 4)
	assert.Equal(t, ToolStatusStarted, toolEvents[0].Status)
	assert.Equal(t, ToolStatusStarted, toolEvents[1].Status)

	// Tool results reach the leader in call order, not completion order.
	var followUp llm.Request
	for _, req := range chat.Requests() {
		if len(req.Messages) > 3 && strings.Contains(req.Messages[0].Content, "leader") {
			followUp = req
		}
	}
	require.NotEmpty(t, followUp.Messages)
	n := len(followUp.Messages)
	assert.Equal(t, "call_web", followUp.Messages[n-2].ToolCallID)
	assert.Equal(t, "web findings", followUp.Messages[n-2].Content)
	assert.Equal(t, "call_fin", followUp.Messages[n-1].ToolCallID)
	assert.Equal(t, "finance findings", followUp.Messages[n-1].Content)

	run, err := st.GetRun(ctx, collected[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	require.Len(t, run.ToolCalls, 2)
	assert.Equal(t, "transfer_task_to_web_search_agent", run.ToolCalls[0].Tool)
	assert.Equal(t, "transfer_task_to_finance_ai_agent", run.ToolCalls[1].Tool)
}

func TestRunner_Run_LLMFailure(t *testing.T) {
	chat := &scriptedChat{steps: []scriptStep{
		{err: errors.New("upstream returned status 503")},
	}}
	r, st, session := setupRunnerTest(t, chat, nil)
	ctx := context.Background()

	events, err := r.Run(ctx, session.ID, "anything")
	require.NoError(t, err)
	collected := collectEvents(t, events)

	last := collected[len(collected)-1]
	assert.Equal(t, EventFailed, last.Kind)
	assert.Contains(t, last.Error, "status 503")

	run, err := st.GetRun(ctx, collected[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "status 503")

	// The user message is kept; no assistant message is written.
	messages, err := st.ListMessages(ctx, session.ID, store.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
}

func TestRunner_Run_MaxTurnsExceeded(t *testing.T) {
	transfer := llm.ToolCall{
		ID:        "call_1",
		Name:      "transfer_task_to_finance_ai_agent",
		Arguments: `{"task_description":"loop"}`,
	}
	chat := &scriptedChat{steps: []scriptStep{
		{toolCalls: []llm.ToolCall{transfer}},
		{content: "member reply"},
		{toolCalls: []llm.ToolCall{transfer}},
		{content: "member reply"},
	}}
	r, st, session := setupRunnerTest(t, chat, nil)
	r.config.MaxTurns = 2
	ctx := context.Background()

	events, err := r.Run(ctx, session.ID, "loop forever")
	require.NoError(t, err)
	collected := collectEvents(t, events)

	last := collected[len(collected)-1]
	assert.Equal(t, EventFailed, last.Kind)

	run, err := st.GetRun(ctx, collected[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "tool call limit exceeded")
}

func TestRunner_Run_Cancellation(t *testing.T) {
	chat := &handlerChat{handler: func(req llm.Request) (*llm.Result, error) {
		return nil, context.Canceled
	}}
	r, st, session := setupRunnerTest(t, chat, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := r.Run(ctx, session.ID, "never answered")
	require.NoError(t, err)
	cancel()

	collected := collectEvents(t, events)
	for _, evt := range collected {
		assert.NotEqual(t, EventCompleted, evt.Kind)
		assert.NotEqual(t, EventFailed, evt.Kind)
	}

	run, err := st.GetRun(context.Background(), collected[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
}

func TestRunner_Run_SessionMissing(t *testing.T) {
	chat := &scriptedChat{}
	r, _, _ := setupRunnerTest(t, chat, nil)

	_, err := r.Run(context.Background(), "sess_missing", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRunner_Run_EmptyQuery(t *testing.T) {
	chat := &scriptedChat{}
	r, _, session := setupRunnerTest(t, chat, nil)

	_, err := r.Run(context.Background(), session.ID, "")
	require.Error(t, err)
}

func TestNewRunner_InvalidTeam(t *testing.T) {
	_, err := NewRunner(&scriptedChat{}, nil, &agent.Team{Name: "empty"}, DefaultConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrNoMembers))
}

// =============================================================================
// Test Helpers
// =============================================================================

// scriptStep is one scripted completion.
type scriptStep struct {
	content   string
	toolCalls []llm.ToolCall
	usage     llm.Usage
	err       error
}

// scriptedChat replays completions in order. Content is delivered through
// onDelta in two fragments when the caller streams.
type scriptedChat struct {
	mu       sync.Mutex
	steps    []scriptStep
	requests []llm.Request
}

func (s *scriptedChat) StreamChat(ctx context.Context, req llm.Request, onDelta func(string)) (*llm.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, errors.New("scripted chat exhausted")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if step.err != nil {
		return nil, step.err
	}

	if onDelta != nil && step.content != "" {
		half := len(step.content) / 2
		onDelta(step.content[:half])
		onDelta(step.content[half:])
	}

	finish := "stop"
	if len(step.toolCalls) > 0 {
		finish = "tool_calls"
	}
	return &llm.Result{
		Content:      step.content,
		ToolCalls:    step.toolCalls,
		FinishReason: finish,
		Usage:        step.usage,
	}, nil
}

func (s *scriptedChat) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// handlerChat routes every completion through a single handler, for flows
// where concurrent calls make a fixed script ambiguous.
type handlerChat struct {
	mu       sync.Mutex
	handler  func(req llm.Request) (*llm.Result, error)
	requests []llm.Request
}

func (h *handlerChat) StreamChat(ctx context.Context, req llm.Request, onDelta func(string)) (*llm.Result, error) {
	h.mu.Lock()
	h.requests = append(h.requests, req)
	h.mu.Unlock()

	result, err := h.handler(req)
	if err != nil {
		return nil, err
	}
	if onDelta != nil && result.Content != "" {
		onDelta(result.Content)
	}
	return result, nil
}

func (h *handlerChat) Requests() []llm.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]llm.Request(nil), h.requests...)
}

func setupRunnerTest(t *testing.T, chat llm.ChatStreamer, financeKit *toolkit.Toolkit) (*Runner, *store.SQLiteStore, *domain.Session) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	team := &agent.Team{
		Name: "Finance Research Team",
		Members: []*agent.Agent{
			{Name: "Web Search Agent", Role: "Search the web for information."},
			{Name: "Finance AI Agent", Role: "Provide stock market data."},
		},
	}
	if financeKit != nil {
		team.Members[1].Toolkits = []*toolkit.Toolkit{financeKit}
	}

	r, err := NewRunner(chat, st, team, DefaultConfig(), nil)
	require.NoError(t, err)

	session := domain.NewSession("")
	require.NoError(t, st.CreateSession(context.Background(), session))

	return r, st, session
}

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()

	var collected []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, evt)
		case <-timeout:
			t.Fatal("timed out waiting for run events")
		}
	}
}

func eventsOfKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, evt := range events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

func joinContent(events []Event) string {
	var b strings.Builder
	for _, evt := range events {
		if evt.Kind == EventContent {
			b.WriteString(evt.Content)
		}
	}
	return b.String()
}
