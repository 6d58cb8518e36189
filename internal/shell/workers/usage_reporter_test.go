package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlab/finsight/internal/core/domain"
	"github.com/tickerlab/finsight/internal/shell/store"
)

// =============================================================================
// Test Configuration
// =============================================================================

func TestDefaultUsageReporterConfig(t *testing.T) {
	config := DefaultUsageReporterConfig()

	assert.Equal(t, 60*time.Second, config.Interval)
	assert.Equal(t, 100, config.BatchSize)
}

func TestNewUsageReporter_DefaultConfig(t *testing.T) {
	r := NewUsageReporter(setupWorkerStore(t), &fakeMeteringClient{}, UsageReporterConfig{}, nil)

	assert.NotNil(t, r)
	assert.Equal(t, 60*time.Second, r.config.Interval)
	assert.Equal(t, 100, r.config.BatchSize)
}

// =============================================================================
// Test Lifecycle
// =============================================================================

func TestUsageReporter_StartStop(t *testing.T) {
	r := NewUsageReporter(setupWorkerStore(t), &fakeMeteringClient{}, UsageReporterConfig{
		Interval: 50 * time.Millisecond,
	}, nil)

	r.Start()
	time.Sleep(20 * time.Millisecond)
	r.Stop()

	// Should be able to start again
	r.Start()
	r.Stop()
}

func TestUsageReporter_StopWithoutStart(t *testing.T) {
	r := NewUsageReporter(setupWorkerStore(t), &fakeMeteringClient{}, UsageReporterConfig{}, nil)
	r.Stop()
}

// =============================================================================
// Test Report Cycle
// =============================================================================

func TestUsageReporter_ReportNow_ShipsAndMarks(t *testing.T) {
	st := setupWorkerStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedUsageEvent(t, st)
	}

	client := &fakeMeteringClient{}
	r := NewUsageReporter(st, client, UsageReporterConfig{}, nil)
	r.ReportNow(ctx)

	require.Len(t, client.Batches(), 1)
	assert.Len(t, client.Batches()[0], 3)

	remaining, err := st.GetUnreportedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestUsageReporter_ReportNow_ClientErrorKeepsEvents(t *testing.T) {
	st := setupWorkerStore(t)
	ctx := context.Background()

	seedUsageEvent(t, st)

	client := &fakeMeteringClient{err: errors.New("webhook unavailable")}
	r := NewUsageReporter(st, client, UsageReporterConfig{}, nil)
	r.ReportNow(ctx)

	// Failed shipments stay queued for the next cycle.
	remaining, err := st.GetUnreportedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestUsageReporter_ReportNow_NoEvents(t *testing.T) {
	client := &fakeMeteringClient{}
	r := NewUsageReporter(setupWorkerStore(t), client, UsageReporterConfig{}, nil)
	r.ReportNow(context.Background())

	assert.Empty(t, client.Batches())
}

func TestUsageReporter_ReportNow_RespectsBatchSize(t *testing.T) {
	st := setupWorkerStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedUsageEvent(t, st)
	}

	client := &fakeMeteringClient{}
	r := NewUsageReporter(st, client, UsageReporterConfig{BatchSize: 2}, nil)
	r.ReportNow(ctx)

	require.Len(t, client.Batches(), 1)
	assert.Len(t, client.Batches()[0], 2)

	remaining, err := st.GetUnreportedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

// =============================================================================
// Fake Metering Client
// =============================================================================

type fakeMeteringClient struct {
	mu      sync.Mutex
	batches [][]domain.UsageEvent
	err     error
}

func (f *fakeMeteringClient) ReportUsage(ctx context.Context, event domain.UsageEvent) error {
	return f.ReportUsageBatch(ctx, []domain.UsageEvent{event})
}

func (f *fakeMeteringClient) ReportUsageBatch(ctx context.Context, events []domain.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]domain.UsageEvent(nil), events...))
	return nil
}

func (f *fakeMeteringClient) Batches() [][]domain.UsageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

// =============================================================================
// Test Helpers
// =============================================================================

func setupWorkerStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedUsageEvent(t *testing.T, st store.Store) *domain.UsageEvent {
	t.Helper()

	event, err := domain.NewUsageEvent("run_1", "sess_1", domain.EventTypePromptTokens, 100)
	require.NoError(t, err)
	require.NoError(t, st.CreateUsageEvent(context.Background(), event))
	return event
}
