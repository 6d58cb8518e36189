// Package llm provides the chat-completion client for the model provider.
// The runner depends only on the ChatStreamer interface so tests can script
// model behavior without a network.
package llm

import (
	"context"

	"github.com/tickerlab/finsight/internal/core/toolkit"
)

// Message roles in the model context.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// =============================================================================
// Request Types
// =============================================================================

// Message is one entry of the model context.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant messages that requested tools
	ToolCallID string     // tool result messages
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON as produced by the model
}

// Request is one chat-completion call.
type Request struct {
	Model       string // empty uses the client's configured model
	Messages    []Message
	Tools       []toolkit.Tool
	Temperature float32
	MaxTokens   int
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message carrying the reply and
// any tool calls it made.
func AssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolResultMessage builds a tool-role message answering one tool call.
func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Content: content}
}

// =============================================================================
// Result Types
// =============================================================================

// Usage carries the provider-reported token counts for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is one assembled completion: the full content, any tool calls the
// model requested, and usage when the provider reports it.
type Result struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// HasToolCalls returns true when the model requested tool invocations.
func (r *Result) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// =============================================================================
// Client Interface
// =============================================================================

// ChatStreamer streams one chat completion. onDelta receives each content
// fragment as it arrives (may be nil when the caller does not stream);
// the returned Result carries the assembled reply.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req Request, onDelta func(string)) (*Result, error)
}
