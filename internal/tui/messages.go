package tui

import (
	"context"

	"github.com/tickerlab/finsight/internal/shell/apiclient"
)

type sessionReadyMsg struct {
	id      string
	history []apiclient.Message
	err     error
}

// streamStartedMsg carries the event channel for one query. The id ties
// every later stream message back to the query that produced it so a
// stale channel cannot touch a newer conversation turn.
type streamStartedMsg struct {
	id     int
	events <-chan apiclient.StreamEvent
	cancel context.CancelFunc
	err    error
}

type streamEventMsg struct {
	id    int
	event apiclient.StreamEvent
}

type streamClosedMsg struct {
	id int
}
