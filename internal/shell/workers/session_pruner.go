package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tickerlab/finsight/internal/shell/store"
)

// SessionPrunerConfig configures the session pruner worker.
type SessionPrunerConfig struct {
	// Interval is the time between pruning cycles.
	// Default: 1 hour.
	Interval time.Duration

	// Retention is how long an idle session is kept.
	// Default: 720 hours (30 days).
	Retention time.Duration

	// BatchSize is the maximum number of sessions deleted per cycle.
	// Default: 100.
	BatchSize int
}

// DefaultSessionPrunerConfig returns the default configuration.
func DefaultSessionPrunerConfig() SessionPrunerConfig {
	return SessionPrunerConfig{
		Interval:  time.Hour,
		Retention: 720 * time.Hour,
		BatchSize: 100,
	}
}

// SessionPruner deletes sessions that have been idle beyond the retention
// window. Deleting a session cascades to its messages and runs; usage
// events are kept so metering history survives pruning.
type SessionPruner struct {
	store  store.Store
	config SessionPrunerConfig
	logger *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionPruner creates a new session pruner worker.
func NewSessionPruner(s store.Store, config SessionPrunerConfig, logger *slog.Logger) *SessionPruner {
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.Retention == 0 {
		config.Retention = 720 * time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionPruner{
		store:  s,
		config: config,
		logger: logger.With("component", "session_pruner"),
	}
}

// Start begins the session pruner background goroutine.
func (p *SessionPruner) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.wg.Add(1)
	go p.run()
	p.logger.Info("session pruner started",
		"interval", p.config.Interval,
		"retention", p.config.Retention,
	)
}

// Stop gracefully stops the session pruner.
func (p *SessionPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("session pruner stopped")
}

func (p *SessionPruner) run() {
	defer p.wg.Done()

	// Run immediately on start
	p.pruneCycle(p.ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pruneCycle(p.ctx)
		}
	}
}

// PruneNow triggers an immediate pruning cycle.
func (p *SessionPruner) PruneNow(ctx context.Context) {
	p.pruneCycle(ctx)
}

func (p *SessionPruner) pruneCycle(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.config.Retention)

	sessions, err := p.store.ListIdleSessions(ctx, cutoff, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to list idle sessions", "error", err)
		return
	}

	if len(sessions) == 0 {
		return
	}

	pruned := 0
	for _, session := range sessions {
		if err := p.store.DeleteSession(ctx, session.ID); err != nil {
			p.logger.Error("failed to prune session", "session_id", session.ID, "error", err)
			continue
		}
		pruned++
	}

	p.logger.Info("pruned idle sessions", "count", pruned, "cutoff", cutoff.Format(time.RFC3339))
}
