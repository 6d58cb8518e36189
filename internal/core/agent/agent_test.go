package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlab/finsight/internal/core/toolkit"
)

// =============================================================================
// Team Shape Tests
// =============================================================================

func TestTeam_Validate_DefaultTeam(t *testing.T) {
	team := createTestTeam()
	assert.NoError(t, team.Validate())
}

func TestTeam_Validate_NoMembers(t *testing.T) {
	team := &Team{Name: "empty"}
	assert.ErrorIs(t, team.Validate(), ErrNoMembers)
}

func TestTeam_Validate_CollidingNames(t *testing.T) {
	team := &Team{Members: []*Agent{
		{Name: "Web Search Agent"},
		{Name: "web-search agent"}, // same snake_case form
	}}
	assert.ErrorIs(t, team.Validate(), ErrDuplicateName)
}

func TestTeam_Member(t *testing.T) {
	team := createTestTeam()

	member, ok := team.Member(FinanceAgentName)
	require.True(t, ok)
	assert.Equal(t, FinanceAgentName, member.Name)

	_, ok = team.Member("Quant Agent")
	assert.False(t, ok)
}

func TestAgent_Tools(t *testing.T) {
	team := createTestTeam()
	finance, ok := team.Member(FinanceAgentName)
	require.True(t, ok)

	names := make([]string, 0)
	for _, tool := range finance.Tools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"stock_price", "get_stock_news"}, names)

	_, ok = finance.FindTool("stock_price")
	assert.True(t, ok)
	_, ok = finance.FindTool("duckduckgo_search")
	assert.False(t, ok)
}

// =============================================================================
// Snake Case Tests
// =============================================================================

func TestSnakeCase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Web Search Agent", "web_search_agent"},
		{"Finance AI Agent", "finance_ai_agent"},
		{"Quant-Research Agent", "quant_research_agent"},
		{"Agent 2.0!", "agent_20"},
		{"already_snake", "already_snake"},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, SnakeCase(tc.in))
		})
	}
}

// =============================================================================
// Delegation Tool Tests
// =============================================================================

func TestTransferToolName(t *testing.T) {
	assert.Equal(t, "transfer_task_to_web_search_agent", TransferToolName(WebSearchAgentName))
	assert.Equal(t, "transfer_task_to_finance_ai_agent", TransferToolName(FinanceAgentName))
}

func TestTeam_TransferTools(t *testing.T) {
	team := createTestTeam()

	tools := team.TransferTools()
	require.Len(t, tools, 2)

	assert.Equal(t, "transfer_task_to_web_search_agent", tools[0].Name)
	assert.Equal(t, "transfer_task_to_finance_ai_agent", tools[1].Name)
	assert.Contains(t, tools[0].Description, "Web Search Agent")
	assert.Contains(t, tools[0].Description, "Search the web for information.")
	assert.Contains(t, tools[0].Parameters.Properties, ParamTaskDescription)
	assert.Contains(t, tools[0].Parameters.Properties, ParamAdditionalInformation)
	assert.Equal(t, []string{ParamTaskDescription}, tools[0].Parameters.Required)
}

func TestTeam_MemberForTool(t *testing.T) {
	team := createTestTeam()

	member, ok := team.MemberForTool("transfer_task_to_finance_ai_agent")
	require.True(t, ok)
	assert.Equal(t, FinanceAgentName, member.Name)

	_, ok = team.MemberForTool("stock_price")
	assert.False(t, ok)
	_, ok = team.MemberForTool("transfer_task_to_quant_agent")
	assert.False(t, ok)
}

func TestTaskFromArguments(t *testing.T) {
	args := toolkit.Arguments{
		ParamTaskDescription:       "Get the latest NVDA price.",
		ParamAdditionalInformation: "The user wants a table.",
	}

	task := TaskFromArguments(args)
	assert.Equal(t, "Get the latest NVDA price.\n\nAdditional information: The user wants a table.", task)
}

func TestTaskFromArguments_DescriptionOnly(t *testing.T) {
	args := toolkit.Arguments{ParamTaskDescription: "Get the latest NVDA price."}
	assert.Equal(t, "Get the latest NVDA price.", TaskFromArguments(args))
}

// =============================================================================
// Test Helpers
// =============================================================================

func noopInvoke(_ context.Context, _ toolkit.Arguments) (string, error) {
	return "ok", nil
}

func createTestToolkit(name string, tools ...string) *toolkit.Toolkit {
	kit := toolkit.New(name)
	for _, tool := range tools {
		kit.MustRegister(toolkit.Tool{
			Name:        tool,
			Description: tool,
			Parameters:  toolkit.TickerSchema(),
			Invoke:      noopInvoke,
		})
	}
	return kit
}

func createTestTeam() *Team {
	return DefaultTeam(DefaultToolkits{
		WebSearch:    createTestToolkit("web_search", "duckduckgo_search"),
		MarketData:   createTestToolkit("market_data", "stock_price"),
		AlphaVantage: createTestToolkit("alpha_vantage_tools", "get_stock_news"),
	})
}
