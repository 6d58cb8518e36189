package agent

import (
	"github.com/tickerlab/finsight/internal/core/domain"
)

// =============================================================================
// Conversation History
// =============================================================================

// DefaultHistoryWindow bounds how many prior messages enter the model
// context. Keeps long sessions within the model's context window.
const DefaultHistoryWindow = 20

// WindowHistory returns the most recent messages, oldest first. A max of
// zero or less applies DefaultHistoryWindow.
func WindowHistory(messages []domain.Message, max int) []domain.Message {
	if max <= 0 {
		max = DefaultHistoryWindow
	}
	if len(messages) <= max {
		return messages
	}
	return messages[len(messages)-max:]
}
