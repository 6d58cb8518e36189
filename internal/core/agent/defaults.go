package agent

import (
	"github.com/tickerlab/finsight/internal/core/toolkit"
)

// =============================================================================
// Default Team
// =============================================================================

// Default agent names. Clients map delegation tool names derived from these
// to status lines, so they are part of the API surface.
const (
	WebSearchAgentName = "Web Search Agent"
	FinanceAgentName   = "Finance AI Agent"
	DefaultTeamName    = "Financial Research"
)

// DefaultToolkits carries the tool backends the built-in team binds to.
// AlphaVantage is nil when no API key is configured; the finance agent then
// works from the market-data toolkit alone.
type DefaultToolkits struct {
	WebSearch    *toolkit.Toolkit
	MarketData   *toolkit.Toolkit
	AlphaVantage *toolkit.Toolkit
}

// DefaultTeam assembles the built-in financial research team: a web search
// agent, a finance agent and a delegating leader.
func DefaultTeam(kits DefaultToolkits) *Team {
	webAgent := &Agent{
		Name:          WebSearchAgentName,
		Role:          "Search the web for information.",
		Instructions:  []string{"Always include sources"},
		Toolkits:      []*toolkit.Toolkit{kits.WebSearch},
		Markdown:      true,
		ShowToolCalls: true,
	}

	financeKits := []*toolkit.Toolkit{kits.MarketData}
	if kits.AlphaVantage != nil {
		financeKits = append(financeKits, kits.AlphaVantage)
	}
	financeAgent := &Agent{
		Name:          FinanceAgentName,
		Role:          "You are a world-class financial analyst. Your primary skill is providing stock market data using your tools.",
		Instructions:  []string{"Use tables to display data"},
		Toolkits:      financeKits,
		Markdown:      true,
		ShowToolCalls: true,
	}

	return &Team{
		Name: DefaultTeamName,
		Instructions: []string{
			"Always include sources",
			"Use tables to display data",
			"When delegating tasks, provide clear details in the 'additional_information' field for the specialist agent.",
		},
		Members:  []*Agent{webAgent, financeAgent},
		Markdown: true,
	}
}
