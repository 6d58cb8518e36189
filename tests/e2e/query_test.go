package e2e

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlab/finsight/internal/core/agent"
	"github.com/tickerlab/finsight/internal/shell/apiclient"
)

// =============================================================================
// Session Query Flow
// =============================================================================

// TestE2E_Query_DirectAnswer runs a query the leader answers without
// delegating.
func TestE2E_Query_DirectAnswer(t *testing.T) {
	t.Cleanup(modelStub.Reset)
	session := CreateSession(t, "")

	events := StreamQuery(t, session.ID, "How do markets feel today?")

	assert.Equal(t, stubDirectAnswer, JoinContent(events))
	assert.Empty(t, ToolCallEvents(events))

	run := DoneRun(t, events)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, stubDirectAnswer, run.Output)
	assert.Equal(t, stubPromptTokens, run.PromptTokens)
	assert.Equal(t, stubCompletionTokens, run.CompletionTokens)
	assert.Equal(t, stubPromptTokens+stubCompletionTokens, run.TotalTokens)

	messages := ListMessages(t, session.ID)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "How do markets feel today?", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, stubDirectAnswer, messages[1].Content)

	// First query names the session.
	assert.Equal(t, "How do markets feel today?", GetSession(t, session.ID).Title)

	// The run is also retrievable on its own.
	fetched := GetRun(t, run.ID)
	assert.Equal(t, "completed", fetched.Status)
	assert.Equal(t, session.ID, fetched.SessionID)

	t.Log("PASS: Direct answer flow completed successfully")
}

// TestE2E_Query_DelegatesToFinanceAgent runs a query the leader hands to
// the finance agent before answering.
func TestE2E_Query_DelegatesToFinanceAgent(t *testing.T) {
	t.Cleanup(modelStub.Reset)
	session := CreateSession(t, "")

	events := StreamQuery(t, session.ID, "What is the price of NVDA?")

	assert.Equal(t, stubClosingAnswer, JoinContent(events))

	transferTool := agent.TransferToolName(agent.FinanceAgentName)
	toolEvents := ToolCallEvents(events)
	require.Len(t, toolEvents, 2)
	assert.Equal(t, "started", toolEvents[0].Status)
	assert.Equal(t, transferTool, toolEvents[0].Tool)
	assert.Equal(t, agent.FinanceAgentName, toolEvents[0].Agent)
	assert.Equal(t, "completed", toolEvents[1].Status)
	assert.Equal(t, transferTool, toolEvents[1].Tool)

	run := DoneRun(t, events)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, stubClosingAnswer, run.Output)

	// Opening, member and closing turns each report usage once.
	assert.Equal(t, 3*stubPromptTokens, run.PromptTokens)
	assert.Equal(t, 3*stubCompletionTokens, run.CompletionTokens)

	require.Len(t, run.ToolCalls, 1)
	assert.Equal(t, agent.FinanceAgentName, run.ToolCalls[0].Agent)
	assert.Equal(t, transferTool, run.ToolCalls[0].Tool)
	assert.Equal(t, stubTransferArgsHead+stubTransferArgsTail, run.ToolCalls[0].Arguments)
	assert.Empty(t, run.ToolCalls[0].Error)

	// The member saw the task assembled from the fragmented arguments.
	var memberSawTask bool
	for _, req := range modelStub.Requests() {
		if !req.hasDelegationTools() && strings.Contains(req.lastUserContent(), "Get the latest NVDA share price") {
			memberSawTask = true
		}
	}
	assert.True(t, memberSawTask, "Expected the member to receive the delegated task")
	assert.Equal(t, 3, modelStub.CallCount())

	t.Log("PASS: Delegation flow completed successfully")
}

// TestE2E_Query_SecondTurnCarriesHistory verifies the leader sees prior
// turns of the same session.
func TestE2E_Query_SecondTurnCarriesHistory(t *testing.T) {
	t.Cleanup(modelStub.Reset)
	session := CreateSession(t, "")

	StreamQuery(t, session.ID, "Give me a market overview.")

	modelStub.Reset()
	events := StreamQuery(t, session.ID, "Anything changed since?")
	DoneRun(t, events)

	requests := modelStub.Requests()
	require.Len(t, requests, 1)

	var sawPriorQuery, sawPriorAnswer bool
	for _, msg := range requests[0].Messages {
		if msg.Role == "user" && msg.Content == "Give me a market overview." {
			sawPriorQuery = true
		}
		if msg.Role == "assistant" && msg.Content == stubDirectAnswer {
			sawPriorAnswer = true
		}
	}
	assert.True(t, sawPriorQuery, "Expected the prior query in the leader context")
	assert.True(t, sawPriorAnswer, "Expected the prior answer in the leader context")

	messages := ListMessages(t, session.ID)
	assert.Len(t, messages, 4)
}

// TestE2E_Query_ModelFailure verifies a backend failure surfaces as an
// error event and a failed run, and the session keeps working afterwards.
func TestE2E_Query_ModelFailure(t *testing.T) {
	t.Cleanup(modelStub.Reset)
	session := CreateSession(t, "")

	modelStub.FailNextCompletions(1)
	events := StreamQuery(t, session.ID, "Will this work?")

	errs := ErrorEvents(events)
	require.Len(t, errs, 1)
	assert.NotEmpty(t, errs[0].Err)

	runs := ListRuns(t, session.ID)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
	assert.NotEmpty(t, runs[0].ErrorMessage)

	// The user message is kept; no assistant reply is recorded.
	messages := ListMessages(t, session.ID)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].Role)

	// The session keeps working once the backend recovers.
	events = StreamQuery(t, session.ID, "And now?")
	run := DoneRun(t, events)
	assert.Equal(t, "completed", run.Status)

	t.Log("PASS: Model failure handling verified")
}

// TestE2E_Query_UnknownSession verifies querying a missing session fails
// before any stream starts.
func TestE2E_Query_UnknownSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
	defer cancel()

	_, err := testClient.Query(ctx, "no-such-session", "hello")
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "session_not_found", apiErr.Code)
}

// =============================================================================
// One-Shot Query Endpoint
// =============================================================================

// TestE2E_PlainQuery_EphemeralSession verifies a one-shot query streams
// plain text and leaves no session behind.
func TestE2E_PlainQuery_EphemeralSession(t *testing.T) {
	t.Cleanup(modelStub.Reset)
	before := len(ListSessions(t))

	status, body := PostQuery(t, map[string]string{"query": "Quick market pulse, please."})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, stubDirectAnswer, body)
	assert.Equal(t, before, len(ListSessions(t)), "Expected the ephemeral session to be deleted")
}

// TestE2E_PlainQuery_ExistingSession verifies a one-shot query can write
// into a caller-owned session without deleting it.
func TestE2E_PlainQuery_ExistingSession(t *testing.T) {
	t.Cleanup(modelStub.Reset)
	session := CreateSession(t, "")

	status, body := PostQuery(t, map[string]string{
		"query":      "Summarize the day.",
		"session_id": session.ID,
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, stubDirectAnswer, body)

	messages := ListMessages(t, session.ID)
	require.Len(t, messages, 2)
	assert.Equal(t, stubDirectAnswer, messages[1].Content)

	// Caller-owned sessions survive the one-shot endpoint.
	GetSession(t, session.ID)
}

// TestE2E_PlainQuery_RequiresQuery verifies validation on the one-shot
// endpoint.
func TestE2E_PlainQuery_RequiresQuery(t *testing.T) {
	status, body := PostQuery(t, map[string]string{"query": "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "validation_error")
}
