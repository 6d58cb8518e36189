// Package apiclient provides a typed client for the Finsight HTTP API,
// including decoding of streamed query events.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Client
// =============================================================================

// Config holds configuration for the API client.
type Config struct {
	BaseURL string
	Token   string        // optional bearer token
	Timeout time.Duration // applies to non-streaming calls
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Timeout: 30 * time.Second,
	}
}

// Client talks to one Finsight server. Streaming queries use a dedicated
// transport without a client timeout since runs can outlive any sensible
// request deadline; cancel the context to stop a stream.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a new API client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}
}

// =============================================================================
// Service Endpoints
// =============================================================================

// Status checks the root endpoint, returning nil when the server is up.
func (c *Client) Status(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("unexpected server status %q", resp.Status)
	}
	return nil
}

// Ready returns the server's readiness checks.
func (c *Client) Ready(ctx context.Context) (*ReadyStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ready", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("readiness request failed: %w", err)
	}
	defer resp.Body.Close()

	// The probe answers 503 with the same body when a check fails.
	var status ReadyStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode readiness response: %w", err)
	}
	return &status, nil
}

// =============================================================================
// Sessions
// =============================================================================

// CreateSession creates a session, optionally titled.
func (c *Client) CreateSession(ctx context.Context, title string) (*Session, error) {
	var session Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/sessions", createSessionRequest{Title: title}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches one session by ID.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/sessions/"+id, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns sessions, most recently active first.
func (c *Client) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	path := "/api/v1/sessions?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	var resp listSessionsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// DeleteSession removes a session and its transcript.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/sessions/"+id, nil, nil)
}

// ListMessages returns a session's transcript in conversation order.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var resp listMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// =============================================================================
// Runs
// =============================================================================

// GetRun fetches one run with its tool-call trace and token usage.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/runs/"+id, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns a session's runs, most recent first.
func (c *Client) ListRuns(ctx context.Context, sessionID string) ([]Run, error) {
	var resp listRunsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID+"/runs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// =============================================================================
// Request Plumbing
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON performs a request and decodes a JSON response into out when it is
// non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiErrorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiErrorFromResponse builds an APIError from an error response body,
// falling back to the raw body when it is not the standard shape.
func apiErrorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return &APIError{Status: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
