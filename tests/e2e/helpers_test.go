package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tickerlab/finsight/internal/shell/apiclient"
)

// streamTimeout bounds how long one streamed query may take end to end.
const streamTimeout = 30 * time.Second

// =============================================================================
// Session Helpers
// =============================================================================

// CreateSession creates a session via the API.
func CreateSession(t *testing.T, title string) *apiclient.Session {
	t.Helper()

	session, err := testClient.CreateSession(context.Background(), title)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	t.Logf("Created session: %s (%q)", session.ID, session.Title)
	return session
}

// GetSession fetches a session by ID.
func GetSession(t *testing.T, id string) *apiclient.Session {
	t.Helper()

	session, err := testClient.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to get session %s: %v", id, err)
	}
	return session
}

// ListSessions lists sessions, most recently active first.
func ListSessions(t *testing.T) []apiclient.Session {
	t.Helper()

	sessions, err := testClient.ListSessions(context.Background(), 1000, 0)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	return sessions
}

// DeleteSession removes a session and its transcript.
func DeleteSession(t *testing.T, id string) {
	t.Helper()

	if err := testClient.DeleteSession(context.Background(), id); err != nil {
		t.Fatalf("Failed to delete session %s: %v", id, err)
	}
	t.Logf("Deleted session: %s", id)
}

// ListMessages returns a session's transcript in conversation order.
func ListMessages(t *testing.T, sessionID string) []apiclient.Message {
	t.Helper()

	messages, err := testClient.ListMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Failed to list messages for %s: %v", sessionID, err)
	}
	return messages
}

// ListRuns returns a session's runs, most recent first.
func ListRuns(t *testing.T, sessionID string) []apiclient.Run {
	t.Helper()

	runs, err := testClient.ListRuns(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Failed to list runs for %s: %v", sessionID, err)
	}
	return runs
}

// GetRun fetches a run with its tool-call trace and token usage.
func GetRun(t *testing.T, id string) *apiclient.Run {
	t.Helper()

	run, err := testClient.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to get run %s: %v", id, err)
	}
	return run
}

// =============================================================================
// Query Stream Helpers
// =============================================================================

// StreamQuery runs a query in a session and drains the whole event stream.
func StreamQuery(t *testing.T, sessionID, query string) []apiclient.StreamEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
	defer cancel()

	events, err := testClient.Query(ctx, sessionID, query)
	if err != nil {
		t.Fatalf("Failed to start query: %v", err)
	}

	var out []apiclient.StreamEvent
	for evt := range events {
		out = append(out, evt)
	}
	return out
}

// JoinContent concatenates the content fragments of a stream.
func JoinContent(events []apiclient.StreamEvent) string {
	var b strings.Builder
	for _, evt := range events {
		if evt.Type == apiclient.EventContent {
			b.WriteString(evt.Content)
		}
	}
	return b.String()
}

// DoneRun returns the terminal run of a stream, failing the test when the
// stream ended without one.
func DoneRun(t *testing.T, events []apiclient.StreamEvent) *apiclient.Run {
	t.Helper()

	for _, evt := range events {
		if evt.Type == apiclient.EventDone {
			return evt.Run
		}
	}
	t.Fatalf("Stream ended without a done event (%d events)", len(events))
	return nil
}

// ToolCallEvents filters a stream down to its tool-call events.
func ToolCallEvents(events []apiclient.StreamEvent) []apiclient.StreamEvent {
	var out []apiclient.StreamEvent
	for _, evt := range events {
		if evt.Type == apiclient.EventToolCall {
			out = append(out, evt)
		}
	}
	return out
}

// ErrorEvents filters a stream down to its error events.
func ErrorEvents(events []apiclient.StreamEvent) []apiclient.StreamEvent {
	var out []apiclient.StreamEvent
	for _, evt := range events {
		if evt.Type == apiclient.EventError {
			out = append(out, evt)
		}
	}
	return out
}

// =============================================================================
// HTTP Helpers
// =============================================================================

// HTTPGet performs a GET with the suite's bearer token.
func HTTPGet(t *testing.T, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("HTTP GET failed: %v", err)
	}
	return resp
}

// HTTPDo performs a prepared request without adding credentials.
func HTTPDo(t *testing.T, req *http.Request) *http.Response {
	t.Helper()

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("HTTP %s %s failed: %v", req.Method, req.URL, err)
	}
	return resp
}

// PostQuery sends a one-shot query to the plain streaming endpoint and
// returns the status code and full body.
func PostQuery(t *testing.T, body any) (int, string) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal query body: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("POST /query failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read query response: %v", err)
	}
	return resp.StatusCode, string(data)
}

// DecodeJSONBody decodes a response body into out and closes it.
func DecodeJSONBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}
