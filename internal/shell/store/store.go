package store

import (
	"context"
	"time"

	"github.com/tickerlab/finsight/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for Finsight entities.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	UpdateSession(ctx context.Context, session *domain.Session) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, opts ListOptions) ([]domain.Session, error)
	ListIdleSessions(ctx context.Context, idleSince time.Time, limit int) ([]domain.Session, error)

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	ListMessages(ctx context.Context, sessionID string, opts ListOptions) ([]domain.Message, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	UpdateRun(ctx context.Context, run *domain.Run) error
	ListRunsBySession(ctx context.Context, sessionID string, opts ListOptions) ([]domain.Run, error)

	// Usage event operations
	CreateUsageEvent(ctx context.Context, event *domain.UsageEvent) error
	GetUnreportedEvents(ctx context.Context, limit int) ([]domain.UsageEvent, error)
	MarkEventsReported(ctx context.Context, ids []string, reportedAt time.Time) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
