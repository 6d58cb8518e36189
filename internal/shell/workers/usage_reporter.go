// Package workers contains background workers for Finsight.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tickerlab/finsight/internal/shell/metering"
	"github.com/tickerlab/finsight/internal/shell/store"
)

// UsageReporterConfig configures the usage reporter worker.
type UsageReporterConfig struct {
	// Interval is the time between reporting cycles.
	// Default: 60 seconds.
	Interval time.Duration

	// BatchSize is the maximum number of events shipped per cycle.
	// Default: 100.
	BatchSize int
}

// DefaultUsageReporterConfig returns the default configuration.
func DefaultUsageReporterConfig() UsageReporterConfig {
	return UsageReporterConfig{
		Interval:  60 * time.Second,
		BatchSize: 100,
	}
}

// UsageReporter periodically ships unreported usage events to the metering
// sink and marks them reported. Events that fail to ship stay unreported
// and are retried on the next cycle.
type UsageReporter struct {
	store  store.Store
	client metering.Client
	config UsageReporterConfig
	logger *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUsageReporter creates a new usage reporter worker.
func NewUsageReporter(s store.Store, client metering.Client, config UsageReporterConfig, logger *slog.Logger) *UsageReporter {
	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &UsageReporter{
		store:  s,
		client: client,
		config: config,
		logger: logger.With("component", "usage_reporter"),
	}
}

// Start begins the usage reporter background goroutine.
func (r *UsageReporter) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.run()
	r.logger.Info("usage reporter started",
		"interval", r.config.Interval,
		"batch_size", r.config.BatchSize,
	)
}

// Stop gracefully stops the usage reporter.
func (r *UsageReporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("usage reporter stopped")
}

func (r *UsageReporter) run() {
	defer r.wg.Done()

	// Ship any backlog on start
	r.reportBatch(r.ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.reportBatch(r.ctx)
		}
	}
}

// ReportNow triggers an immediate report cycle.
func (r *UsageReporter) ReportNow(ctx context.Context) {
	r.reportBatch(ctx)
}

func (r *UsageReporter) reportBatch(ctx context.Context) {
	events, err := r.store.GetUnreportedEvents(ctx, r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to get unreported events", "error", err)
		return
	}

	if len(events) == 0 {
		return
	}

	r.logger.Debug("reporting usage events", "count", len(events))

	if err := r.client.ReportUsageBatch(ctx, events); err != nil {
		r.logger.Error("failed to report usage events",
			"error", err,
			"count", len(events),
		)
		return
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	if err := r.store.MarkEventsReported(ctx, ids, time.Now().UTC()); err != nil {
		r.logger.Error("failed to mark events as reported",
			"error", err,
			"count", len(ids),
		)
		return
	}

	r.logger.Info("reported usage events", "count", len(events))
}
