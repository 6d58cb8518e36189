package tui

import (
	"context"
	"log/slog"

	"github.com/tickerlab/finsight/internal/shell/apiclient"
)

// API is the slice of the finsight client the chat UI needs.
type API interface {
	CreateSession(ctx context.Context, title string) (*apiclient.Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]apiclient.Message, error)
	Query(ctx context.Context, sessionID, query string) (<-chan apiclient.StreamEvent, error)
}

var _ API = (*apiclient.Client)(nil)

type Deps struct {
	API API

	// Session resumes an existing conversation instead of creating one.
	Session string

	Logger *slog.Logger
	Debug  bool
}
