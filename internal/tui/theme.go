package tui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	UserTag  lipgloss.Style
	AgentTag lipgloss.Style
	Status   lipgloss.Style
	Error    lipgloss.Style
	Help     lipgloss.Style
}

func DefaultTheme() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true),
		Subtitle: lipgloss.NewStyle().Faint(true),
		UserTag:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		AgentTag: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Status:   lipgloss.NewStyle().Faint(true).Italic(true),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Help:     lipgloss.NewStyle().Faint(true),
	}
}
