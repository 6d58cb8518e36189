package metering

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlab/finsight/internal/core/domain"
)

func TestNewWebhookClient_DefaultConfig(t *testing.T) {
	cfg := DefaultWebhookConfig()
	client := NewWebhookClient(cfg)

	assert.NotNil(t, client)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

func TestWebhookClient_ReportUsage_Success(t *testing.T) {
	var receivedRequest usageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		err := json.NewDecoder(r.Body).Decode(&receivedRequest)
		require.NoError(t, err)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewWebhookClient(WebhookConfig{
		URL:   server.URL,
		Token: "test-token",
	})

	event, err := domain.NewUsageEvent("run_1", "sess_1", domain.EventTypePromptTokens, 250)
	require.NoError(t, err)
	event.WithMetadata(`{"model":"llama-3.3-70b-versatile"}`)

	err = client.ReportUsage(context.Background(), *event)
	require.NoError(t, err)

	require.Len(t, receivedRequest.Events, 1)
	assert.Equal(t, event.ID, receivedRequest.Events[0].EventID)
	assert.Equal(t, "run_1", receivedRequest.Events[0].RunID)
	assert.Equal(t, "sess_1", receivedRequest.Events[0].SessionID)
	assert.Equal(t, "tokens.prompt", receivedRequest.Events[0].EventType)
	assert.Equal(t, int64(250), receivedRequest.Events[0].Quantity)
	assert.Equal(t, `{"model":"llama-3.3-70b-versatile"}`, receivedRequest.Events[0].Metadata)
}

func TestWebhookClient_ReportUsageBatch_Success(t *testing.T) {
	var receivedRequest usageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&receivedRequest)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewWebhookClient(WebhookConfig{URL: server.URL})

	first, err := domain.NewUsageEvent("run_1", "sess_1", domain.EventTypePromptTokens, 100)
	require.NoError(t, err)
	second, err := domain.NewUsageEvent("run_1", "sess_1", domain.EventTypeCompletionTokens, 40)
	require.NoError(t, err)

	err = client.ReportUsageBatch(context.Background(), []domain.UsageEvent{*first, *second})
	require.NoError(t, err)

	require.Len(t, receivedRequest.Events, 2)
	assert.Equal(t, "tokens.prompt", receivedRequest.Events[0].EventType)
	assert.Equal(t, "tokens.completion", receivedRequest.Events[1].EventType)
}

func TestWebhookClient_ReportUsageBatch_EmptyEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called for empty events")
	}))
	defer server.Close()

	client := NewWebhookClient(WebhookConfig{URL: server.URL})

	err := client.ReportUsageBatch(context.Background(), []domain.UsageEvent{})
	require.NoError(t, err)
}

func TestWebhookClient_ReportUsage_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal server error"}`))
	}))
	defer server.Close()

	client := NewWebhookClient(WebhookConfig{URL: server.URL})

	event, err := domain.NewUsageEvent("run_1", "sess_1", domain.EventTypeRunCompleted, 1)
	require.NoError(t, err)

	err = client.ReportUsage(context.Background(), *event)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestNoOpClient_ReportUsage(t *testing.T) {
	client := NewNoOpClient()

	event, err := domain.NewUsageEvent("run_1", "sess_1", domain.EventTypeRunCompleted, 1)
	require.NoError(t, err)

	assert.NoError(t, client.ReportUsage(context.Background(), *event))
	assert.NoError(t, client.ReportUsageBatch(context.Background(), []domain.UsageEvent{*event}))
}
