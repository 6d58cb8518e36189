package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlab/finsight/internal/core/domain"
	"github.com/tickerlab/finsight/internal/shell/store"
)

func TestDefaultSessionPrunerConfig(t *testing.T) {
	config := DefaultSessionPrunerConfig()

	assert.Equal(t, time.Hour, config.Interval)
	assert.Equal(t, 720*time.Hour, config.Retention)
	assert.Equal(t, 100, config.BatchSize)
}

func TestSessionPruner_StartStop(t *testing.T) {
	p := NewSessionPruner(setupWorkerStore(t), SessionPrunerConfig{
		Interval: 50 * time.Millisecond,
	}, nil)

	p.Start()
	time.Sleep(20 * time.Millisecond)
	p.Stop()
}

func TestSessionPruner_PruneNow_DeletesIdleOnly(t *testing.T) {
	st := setupWorkerStore(t)
	ctx := context.Background()

	idle := domain.NewSession("old research thread")
	idle.UpdatedAt = time.Now().UTC().Add(-31 * 24 * time.Hour)
	require.NoError(t, st.CreateSession(ctx, idle))

	active := domain.NewSession("fresh thread")
	require.NoError(t, st.CreateSession(ctx, active))

	p := NewSessionPruner(st, SessionPrunerConfig{}, nil)
	p.PruneNow(ctx)

	_, err := st.GetSession(ctx, idle.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.GetSession(ctx, active.ID)
	assert.NoError(t, err)
}

func TestSessionPruner_PruneNow_RespectsBatchSize(t *testing.T) {
	st := setupWorkerStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := domain.NewSession("stale")
		s.UpdatedAt = time.Now().UTC().Add(-31 * 24 * time.Hour)
		require.NoError(t, st.CreateSession(ctx, s))
	}

	p := NewSessionPruner(st, SessionPrunerConfig{BatchSize: 2}, nil)
	p.PruneNow(ctx)

	sessions, err := st.ListSessions(ctx, store.DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSessionPruner_PruneNow_KeepsUsageEvents(t *testing.T) {
	st := setupWorkerStore(t)
	ctx := context.Background()

	session := domain.NewSession("metered thread")
	session.UpdatedAt = time.Now().UTC().Add(-31 * 24 * time.Hour)
	require.NoError(t, st.CreateSession(ctx, session))

	event, err := domain.NewUsageEvent("run_1", session.ID, domain.EventTypeRunCompleted, 1)
	require.NoError(t, err)
	require.NoError(t, st.CreateUsageEvent(ctx, event))

	p := NewSessionPruner(st, SessionPrunerConfig{}, nil)
	p.PruneNow(ctx)

	_, err = st.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Metering history outlives the session.
	events, err := st.GetUnreportedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
