// Package tui implements the terminal chat client: a message history
// viewport, an input line, and a live view of the answer as the server
// streams it, including status lines while the team delegates to its
// member agents.
package tui

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tickerlab/finsight/internal/shell/apiclient"
)

const (
	appTitle    = "📈 Financial AI Agent"
	appSubtitle = "This multi-agent assistant can search the web and access real-time financial data."

	greetingMessage  = "Hi! How can I help you with your financial research today?"
	inputPlaceholder = "Ask me about stocks, news, and more..."

	errorFallbackMessage = "Sorry, an error occurred. This can happen if the external data source is slow or unavailable. Please try your request again in a moment."

	// streamCursor trails the partial answer while the stream is open.
	streamCursor = "▌"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

type chatMessage struct {
	role    string
	content string
}

type model struct {
	theme  Theme
	deps   Deps
	api    API
	logger *slog.Logger

	vp    viewport.Model
	input textinput.Model
	spin  spinner.Model

	messages  []chatMessage
	sessionID string
	banner    string

	// streaming turn state
	streaming bool
	streamID  int
	events    <-chan apiclient.StreamEvent
	cancel    context.CancelFunc
	draft     string
	status    string

	width  int
	height int
}

func Run(deps Deps) error {
	m := newModel(deps)
	p := tea.NewProgram(wrapSafe(m, deps.Logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func newModel(deps Deps) model {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	input := textinput.New()
	input.Placeholder = inputPlaceholder
	input.Prompt = "> "
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	m := model{
		theme:    DefaultTheme(),
		deps:     deps,
		api:      deps.API,
		logger:   logger,
		vp:       viewport.New(80, 20),
		input:    input,
		spin:     spin,
		messages: []chatMessage{{role: roleAssistant, content: greetingMessage}},
	}
	m.syncViewport()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, cmdStartSession(m.deps))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = max(20, msg.Width-4)
		m.vp.Height = max(5, msg.Height-9)
		m.input.Width = max(20, msg.Width-8)
		m.syncViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit

		case "enter":
			return m.startQuery()

		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}

	case sessionReadyMsg:
		return m.handleSessionReady(msg)

	case streamStartedMsg:
		return m.handleStreamStarted(msg)

	case streamEventMsg:
		return m.handleStreamEvent(msg)

	case streamClosedMsg:
		return m.handleStreamClosed(msg)

	case spinner.TickMsg:
		if !m.streaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.draft == "" && m.status == "" {
			m.syncViewport()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) startQuery() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" || m.streaming || m.sessionID == "" {
		return m, nil
	}

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	m.messages = append(m.messages, chatMessage{role: roleUser, content: query})
	m.input.SetValue("")
	m.streaming = true
	m.draft = ""
	m.status = ""
	m.streamID++
	m.syncViewport()

	return m, tea.Batch(cmdStartQuery(m.api, m.sessionID, query, m.streamID), m.spin.Tick)
}

func (m model) handleSessionReady(msg sessionReadyMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.logger.Error("session.setup_failed", "err", msg.err)
		m.banner = "Cannot reach the Finsight server: " + msg.err.Error()
		return m, nil
	}

	m.sessionID = msg.id
	for _, h := range msg.history {
		m.messages = append(m.messages, chatMessage{role: h.Role, content: h.Content})
	}
	m.syncViewport()
	return m, nil
}

func (m model) handleStreamStarted(msg streamStartedMsg) (tea.Model, tea.Cmd) {
	if msg.id != m.streamID {
		if msg.cancel != nil {
			msg.cancel()
		}
		return m, nil
	}

	if msg.err != nil {
		m.logger.Error("query.start_failed", "err", msg.err)
		return m.finishTurn(errorFallbackMessage, msg.err.Error()), nil
	}

	m.events = msg.events
	m.cancel = msg.cancel
	return m, listenStream(m.streamID, m.events)
}

func (m model) handleStreamEvent(msg streamEventMsg) (tea.Model, tea.Cmd) {
	if msg.id != m.streamID {
		return m, nil
	}

	evt := msg.event
	switch evt.Type {
	case apiclient.EventContent:
		m.draft += evt.Content
		m.status = ""

	case apiclient.EventToolCall:
		if evt.Status == "started" {
			if s := statusForTool(evt.Tool, evt.Agent); s != "" {
				m.status = s
			}
		}

	case apiclient.EventDone:
		final := m.draft
		if evt.Run != nil && evt.Run.Output != "" {
			final = evt.Run.Output
		}
		return m.finishTurn(final, ""), listenStream(m.streamID, m.events)

	case apiclient.EventError:
		m.logger.Error("query.run_failed", "err", evt.Err)
		return m.finishTurn(errorFallbackMessage, evt.Err), listenStream(m.streamID, m.events)
	}

	m.syncViewport()
	return m, listenStream(m.streamID, m.events)
}

func (m model) handleStreamClosed(msg streamClosedMsg) (tea.Model, tea.Cmd) {
	if msg.id != m.streamID {
		return m, nil
	}

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.events = nil

	if m.streaming {
		// The server went away mid-answer.
		m.logger.Error("query.stream_interrupted")
		return m.finishTurn(errorFallbackMessage, ""), nil
	}
	return m, nil
}

// finishTurn appends the assistant's final text for this turn and resets
// the streaming state. detail is shown in the banner in debug mode.
func (m model) finishTurn(final, detail string) model {
	m.messages = append(m.messages, chatMessage{role: roleAssistant, content: final})
	m.streaming = false
	m.draft = ""
	m.status = ""
	if m.deps.Debug && detail != "" {
		m.banner = detail
	}
	m.syncViewport()
	return m
}

func (m *model) syncViewport() {
	m.vp.SetContent(m.renderHistory())
	m.vp.GotoBottom()
}

func (m model) renderHistory() string {
	wrap := lipgloss.NewStyle().Width(max(20, m.vp.Width-2))

	var b strings.Builder
	for _, msg := range m.messages {
		if msg.role == roleUser {
			b.WriteString(m.theme.UserTag.Render("You"))
		} else {
			b.WriteString(m.theme.AgentTag.Render("Assistant"))
		}
		b.WriteString("\n")
		b.WriteString(wrap.Render(msg.content))
		b.WriteString("\n\n")
	}

	if m.streaming {
		b.WriteString(m.theme.AgentTag.Render("Assistant"))
		b.WriteString("\n")
		switch {
		case m.status != "":
			b.WriteString(m.theme.Status.Render(m.status))
		case m.draft != "":
			b.WriteString(wrap.Render(m.draft + streamCursor))
		default:
			b.WriteString(m.spin.View() + " Thinking...")
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (m model) View() string {
	wrap := lipgloss.NewStyle().Padding(1, 2)

	header := m.theme.Title.Render(appTitle) + "\n" + m.theme.Subtitle.Render(appSubtitle)
	if m.banner != "" {
		header += "\n" + m.theme.Error.Render(m.banner)
	}

	help := "enter send • pgup/pgdn scroll • esc quit"
	if m.deps.Debug && m.sessionID != "" {
		help += " • session " + m.sessionID
	}

	return wrap.Render(header + "\n\n" + m.vp.View() + "\n\n" + m.input.View() + "\n" + m.theme.Help.Render(help))
}
