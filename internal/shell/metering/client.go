// Package metering ships usage events to an external metering webhook.
package metering

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tickerlab/finsight/internal/core/domain"
)

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the interface for reporting usage events.
type Client interface {
	// ReportUsage reports a single usage event.
	ReportUsage(ctx context.Context, event domain.UsageEvent) error

	// ReportUsageBatch reports multiple usage events at once.
	ReportUsageBatch(ctx context.Context, events []domain.UsageEvent) error
}

// =============================================================================
// Webhook Client Implementation
// =============================================================================

// WebhookClient implements Client by POSTing event batches to a webhook URL.
type WebhookClient struct {
	url        string
	token      string
	httpClient *http.Client
}

// WebhookConfig holds configuration for the webhook client.
type WebhookConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// DefaultWebhookConfig returns default webhook client configuration.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout: 30 * time.Second,
	}
}

// NewWebhookClient creates a new webhook metering client.
func NewWebhookClient(cfg WebhookConfig) *WebhookClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &WebhookClient{
		url:   cfg.URL,
		token: cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// usageRequest represents the request body for reporting usage.
type usageRequest struct {
	Events []usageEventPayload `json:"events"`
}

// usageEventPayload represents a single event in the usage request.
type usageEventPayload struct {
	EventID   string `json:"event_id"`
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"`
	Quantity  int64  `json:"quantity"`
	Metadata  string `json:"metadata,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ReportUsage reports a single usage event.
func (c *WebhookClient) ReportUsage(ctx context.Context, event domain.UsageEvent) error {
	return c.ReportUsageBatch(ctx, []domain.UsageEvent{event})
}

// ReportUsageBatch reports multiple usage events to the webhook.
func (c *WebhookClient) ReportUsageBatch(ctx context.Context, events []domain.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	payload := usageRequest{
		Events: make([]usageEventPayload, len(events)),
	}

	for i, event := range events {
		payload.Events[i] = usageEventPayload{
			EventID:   event.ID,
			RunID:     event.RunID,
			SessionID: event.SessionID,
			EventType: string(event.EventType),
			Quantity:  event.Quantity,
			Metadata:  event.Metadata,
			Timestamp: event.Timestamp.Format(time.RFC3339),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal usage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send usage request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("metering webhook returned error %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// =============================================================================
// No-Op Client (for development/testing)
// =============================================================================

// NoOpClient is a metering client that does nothing (for development mode).
type NoOpClient struct{}

// NewNoOpClient creates a no-op metering client.
func NewNoOpClient() *NoOpClient {
	return &NoOpClient{}
}

// ReportUsage does nothing.
func (c *NoOpClient) ReportUsage(ctx context.Context, event domain.UsageEvent) error {
	return nil
}

// ReportUsageBatch does nothing.
func (c *NoOpClient) ReportUsageBatch(ctx context.Context, events []domain.UsageEvent) error {
	return nil
}
