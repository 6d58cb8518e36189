package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// streamBuffer bounds how far a consumer can fall behind the decoder.
const streamBuffer = 16

// =============================================================================
// Query Stream
// =============================================================================

// Query runs a query in a session and returns the decoded event stream.
// The channel is closed when the server ends the stream; cancel ctx to
// stop early.
func (c *Client) Query(ctx context.Context, sessionID, query string) (<-chan StreamEvent, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/query", queryRequest{Query: query})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, apiErrorFromResponse(resp)
	}

	events := make(chan StreamEvent, streamBuffer)
	go readStream(ctx, resp.Body, events)
	return events, nil
}

// readStream decodes server-sent events until the body ends.
func readStream(ctx context.Context, body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var name, data string
	dispatch := func() {
		if name == "" && data == "" {
			return
		}
		if evt, ok := decodeStreamEvent(name, data); ok {
			select {
			case events <- evt:
			case <-ctx.Done():
			}
		}
		name, data = "", ""
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			dispatch()
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	dispatch()

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		select {
		case events <- StreamEvent{Type: EventError, Err: "stream read failed: " + err.Error()}:
		case <-ctx.Done():
		}
	}
}

// decodeStreamEvent maps one wire event to a StreamEvent. Unknown event
// names are skipped so new server events do not break older clients.
func decodeStreamEvent(name, data string) (StreamEvent, bool) {
	switch name {
	case EventContent:
		var payload struct {
			RunID   string `json:"run_id"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return StreamEvent{}, false
		}
		return StreamEvent{Type: EventContent, RunID: payload.RunID, Content: payload.Content}, true

	case EventToolCall:
		var payload struct {
			RunID  string `json:"run_id"`
			Agent  string `json:"agent"`
			Tool   string `json:"tool"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return StreamEvent{}, false
		}
		return StreamEvent{
			Type:   EventToolCall,
			RunID:  payload.RunID,
			Agent:  payload.Agent,
			Tool:   payload.Tool,
			Status: payload.Status,
		}, true

	case EventDone:
		var payload struct {
			Run Run `json:"run"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return StreamEvent{}, false
		}
		return StreamEvent{Type: EventDone, RunID: payload.Run.ID, Run: &payload.Run}, true

	case EventError:
		var payload struct {
			RunID string `json:"run_id"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return StreamEvent{}, false
		}
		return StreamEvent{Type: EventError, RunID: payload.RunID, Err: payload.Error}, true

	default:
		return StreamEvent{}, false
	}
}
