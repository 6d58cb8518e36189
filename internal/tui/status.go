package tui

import "strings"

// Delegation tool names as they appear on the wire. The server streams a
// tool_call event when the team leader hands a task to a member.
const (
	transferToolPrefix    = "transfer_task_to_"
	webSearchTransferTool = "transfer_task_to_web_search_agent"
	financeTransferTool   = "transfer_task_to_finance_ai_agent"
)

const (
	statusSearchingWeb  = "🌐 Searching the web..."
	statusFinancialData = "🔍 Accessing financial data..."
)

// statusForTool maps a delegation tool call to a user-facing status line.
// Member tool calls (quotes, news lookups) return "" so the current status
// stays on screen until the answer starts streaming.
func statusForTool(tool, agentName string) string {
	switch tool {
	case webSearchTransferTool:
		return statusSearchingWeb
	case financeTransferTool:
		return statusFinancialData
	}
	if strings.HasPrefix(tool, transferToolPrefix) && agentName != "" {
		return "⏳ Consulting " + agentName + "..."
	}
	return ""
}
