package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlab/finsight/internal/core/domain"
)

// =============================================================================
// Member Prompt Tests
// =============================================================================

func TestSystemPrompt_FinanceAgent(t *testing.T) {
	team := createTestTeam()
	finance, ok := team.Member(FinanceAgentName)
	require.True(t, ok)

	prompt := SystemPrompt(finance)

	assert.Contains(t, prompt, "You are Finance AI Agent.")
	assert.Contains(t, prompt, "world-class financial analyst")
	assert.Contains(t, prompt, "## Instructions")
	assert.Contains(t, prompt, "- Use tables to display data")
	assert.Contains(t, prompt, MarkdownInstruction)
	assert.Contains(t, prompt, "Use your tools")
}

func TestSystemPrompt_NoTools(t *testing.T) {
	prompt := SystemPrompt(&Agent{Name: "Summarizer", Role: "Summarize text."})

	assert.Contains(t, prompt, "You are Summarizer. Summarize text.")
	assert.NotContains(t, prompt, "Use your tools")
	assert.NotContains(t, prompt, "## Instructions")
}

func TestSystemPrompt_Deterministic(t *testing.T) {
	team := createTestTeam()
	web, ok := team.Member(WebSearchAgentName)
	require.True(t, ok)

	assert.Equal(t, SystemPrompt(web), SystemPrompt(web))
}

// =============================================================================
// Leader Prompt Tests
// =============================================================================

func TestLeaderSystemPrompt(t *testing.T) {
	team := createTestTeam()

	prompt := LeaderSystemPrompt(team)

	assert.Contains(t, prompt, "leader of the Financial Research team")
	assert.Contains(t, prompt, "## Team")
	assert.Contains(t, prompt, "- Web Search Agent: Search the web for information.")
	assert.Contains(t, prompt, "- Finance AI Agent:")
	assert.Contains(t, prompt, ParamTaskDescription)
	assert.Contains(t, prompt, "- Always include sources")
	assert.Contains(t, prompt, "- Use tables to display data")
	assert.Contains(t, prompt, "'additional_information' field")
	assert.Contains(t, prompt, MarkdownInstruction)
}

func TestLeaderSystemPrompt_UnnamedTeam(t *testing.T) {
	team := createTestTeam()
	team.Name = ""

	prompt := LeaderSystemPrompt(team)
	assert.Contains(t, prompt, "leader of a team of AI agents")
}

func TestLeaderSystemPrompt_MembersInOrder(t *testing.T) {
	team := createTestTeam()

	prompt := LeaderSystemPrompt(team)
	webIdx := strings.Index(prompt, WebSearchAgentName)
	financeIdx := strings.Index(prompt, FinanceAgentName)
	require.True(t, webIdx >= 0 && financeIdx >= 0)
	assert.Less(t, webIdx, financeIdx)
}

// =============================================================================
// History Window Tests
// =============================================================================

func TestWindowHistory_UnderLimit(t *testing.T) {
	messages := createMessages(5)
	windowed := WindowHistory(messages, 10)
	assert.Len(t, windowed, 5)
}

func TestWindowHistory_OverLimit_KeepsNewest(t *testing.T) {
	messages := createMessages(30)

	windowed := WindowHistory(messages, 10)
	require.Len(t, windowed, 10)
	assert.Equal(t, messages[20].ID, windowed[0].ID)
	assert.Equal(t, messages[29].ID, windowed[9].ID)
}

func TestWindowHistory_DefaultWindow(t *testing.T) {
	messages := createMessages(50)

	windowed := WindowHistory(messages, 0)
	assert.Len(t, windowed, DefaultHistoryWindow)
}

func createMessages(n int) []domain.Message {
	messages := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msg, err := domain.NewMessage("sess-123", role, "message")
		if err != nil {
			panic(err)
		}
		messages = append(messages, *msg)
	}
	return messages
}
