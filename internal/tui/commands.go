package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tickerlab/finsight/internal/shell/apiclient"
)

const sessionSetupTimeout = 15 * time.Second

// cmdStartSession creates a fresh session, or loads the history of the
// one named in deps so the conversation resumes where it left off.
func cmdStartSession(deps Deps) tea.Cmd {
	return func() tea.Msg {
		if deps.API == nil {
			return sessionReadyMsg{err: errors.New("API client is nil")}
		}

		ctx, cancel := context.WithTimeout(context.Background(), sessionSetupTimeout)
		defer cancel()

		if deps.Session != "" {
			history, err := deps.API.ListMessages(ctx, deps.Session)
			if err != nil {
				return sessionReadyMsg{err: err}
			}
			return sessionReadyMsg{id: deps.Session, history: history}
		}

		session, err := deps.API.CreateSession(ctx, "")
		if err != nil {
			return sessionReadyMsg{err: err}
		}
		return sessionReadyMsg{id: session.ID}
	}
}

// cmdStartQuery opens the event stream for one query. The stream context
// is cancelled by the model when the stream closes or the user quits.
func cmdStartQuery(api API, sessionID, query string, id int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())

		events, err := api.Query(ctx, sessionID, query)
		if err != nil {
			cancel()
			return streamStartedMsg{id: id, err: err}
		}
		return streamStartedMsg{id: id, events: events, cancel: cancel}
	}
}

// listenStream waits for the next event on an open query stream.
func listenStream(id int, events <-chan apiclient.StreamEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-events
		if !ok {
			return streamClosedMsg{id: id}
		}
		return streamEventMsg{id: id, event: evt}
	}
}
