package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/tickerlab/finsight/internal/core/agent"
)

// Fixed token usage reported per completion, so multi-call flows are
// distinguishable from single-call ones by their totals.
const (
	stubPromptTokens     = 12
	stubCompletionTokens = 7
)

// Canned replies. A query mentioning the trigger ticker makes the leader
// delegate to the finance agent; anything else is answered directly.
const (
	delegationTrigger = "NVDA"

	stubDirectAnswer  = "Markets are quiet right now. Ask about a ticker for live numbers."
	stubMemberAnswer  = "NVDA last closed at 901.25 USD, up 1.8% on the day."
	stubClosingAnswer = "NVDA closed at 901.25 USD, up 1.8%. Figures via the finance desk."
)

// Delegation call arguments, split mid-string across two chunks the way
// real backends fragment streamed tool calls.
const (
	stubTransferArgsHead = `{"task_description":"Get the latest NVDA`
	stubTransferArgsTail = ` share price and the percent move."}`
)

// =============================================================================
// Scripted Model Backend
// =============================================================================

// scriptedModel serves an OpenAI-compatible chat-completions endpoint whose
// replies are derived from the request shape instead of a real model:
//
//   - a leader request (carries delegation tools) mentioning the trigger
//     ticker answers with a transfer call to the finance agent
//   - a leader request that already holds a tool reply gets the closing
//     answer
//   - a member request (no delegation tools) gets the member answer
//   - any other leader request gets the direct answer
type scriptedModel struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []chatRequest
	failNext int
}

func newScriptedModel() *scriptedModel {
	s := &scriptedModel{}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", s.handleCompletion)
	s.server = httptest.NewServer(mux)
	return s
}

// URL returns the backend's base URL, usable as an OpenAI-compatible
// BaseURL.
func (s *scriptedModel) URL() string {
	return s.server.URL
}

func (s *scriptedModel) Close() {
	s.server.Close()
}

// Reset clears recorded requests and pending failures.
func (s *scriptedModel) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.failNext = 0
}

// FailNextCompletions makes the next n completions answer HTTP 500.
func (s *scriptedModel) FailNextCompletions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Requests returns a copy of every completion request received so far.
func (s *scriptedModel) Requests() []chatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// CallCount returns how many completions have been requested.
func (s *scriptedModel) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// =============================================================================
// Request Wire Types
// =============================================================================

// chatRequest is the slice of a chat-completions request the stub routes on.
type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools"`
}

type chatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

func (r chatRequest) hasDelegationTools() bool {
	for _, tool := range r.Tools {
		if strings.HasPrefix(tool.Function.Name, agent.TransferToolPrefix) {
			return true
		}
	}
	return false
}

func (r chatRequest) hasToolReply() bool {
	for _, msg := range r.Messages {
		if msg.Role == "tool" {
			return true
		}
	}
	return false
}

func (r chatRequest) lastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// =============================================================================
// Response Wire Types
// =============================================================================

// streamChunk mirrors one chat-completion stream chunk.
type streamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
	Usage   *tokenUsage    `json:"usage,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type streamDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []streamToolCall `json:"tool_calls,omitempty"`
}

type streamToolCall struct {
	Index    int            `json:"index"`
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Function streamFunction `json:"function"`
}

type streamFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type tokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// =============================================================================
// Completion Handler
// =============================================================================

func (s *scriptedModel) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	fail := s.failNext > 0
	if fail {
		s.failNext--
	}
	s.mu.Unlock()

	if fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"model backend unavailable","type":"server_error"}}`)
		return
	}

	switch {
	case !req.hasDelegationTools():
		s.streamContent(w, req.Model, stubMemberAnswer)
	case req.hasToolReply():
		s.streamContent(w, req.Model, stubClosingAnswer)
	case strings.Contains(req.lastUserContent(), delegationTrigger):
		s.streamTransfer(w, req.Model)
	default:
		s.streamContent(w, req.Model, stubDirectAnswer)
	}
}

// streamContent streams text in two fragments, then the stop and usage
// chunks.
func (s *scriptedModel) streamContent(w http.ResponseWriter, model, text string) {
	flusher := beginStream(w)

	mid := len(text) / 2
	writeChunk(w, flusher, streamChunk{
		Model:   model,
		Choices: []streamChoice{{Delta: streamDelta{Role: "assistant", Content: text[:mid]}}},
	})
	writeChunk(w, flusher, streamChunk{
		Model:   model,
		Choices: []streamChoice{{Delta: streamDelta{Content: text[mid:]}}},
	})
	endStream(w, flusher, model, "stop")
}

// streamTransfer streams a delegation call to the finance agent with its
// arguments fragmented across two chunks.
func (s *scriptedModel) streamTransfer(w http.ResponseWriter, model string) {
	flusher := beginStream(w)

	transferTool := agent.TransferToolName(agent.FinanceAgentName)
	writeChunk(w, flusher, streamChunk{
		Model: model,
		Choices: []streamChoice{{Delta: streamDelta{
			Role: "assistant",
			ToolCalls: []streamToolCall{{
				ID:       "call_finance_1",
				Type:     "function",
				Function: streamFunction{Name: transferTool, Arguments: stubTransferArgsHead},
			}},
		}}},
	})
	writeChunk(w, flusher, streamChunk{
		Model: model,
		Choices: []streamChoice{{Delta: streamDelta{
			ToolCalls: []streamToolCall{{
				Function: streamFunction{Arguments: stubTransferArgsTail},
			}},
		}}},
	})
	endStream(w, flusher, model, "tool_calls")
}

func beginStream(w http.ResponseWriter) http.Flusher {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return flusher
}

// endStream writes the finish chunk, the usage-only chunk and the DONE
// sentinel.
func endStream(w http.ResponseWriter, flusher http.Flusher, model, finishReason string) {
	writeChunk(w, flusher, streamChunk{
		Model:   model,
		Choices: []streamChoice{{FinishReason: finishReason}},
	})
	writeChunk(w, flusher, streamChunk{
		Model:   model,
		Choices: []streamChoice{},
		Usage: &tokenUsage{
			PromptTokens:     stubPromptTokens,
			CompletionTokens: stubCompletionTokens,
			TotalTokens:      stubPromptTokens + stubCompletionTokens,
		},
	})
	io.WriteString(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeChunk(w http.ResponseWriter, flusher http.Flusher, c streamChunk) {
	if c.ID == "" {
		c.ID = "chatcmpl-e2e"
	}
	if c.Object == "" {
		c.Object = "chat.completion.chunk"
	}
	if c.Created == 0 {
		c.Created = 1700000000
	}
	payload, _ := json.Marshal(c)
	fmt.Fprintf(w, "data: %s\n\n", payload)
	if flusher != nil {
		flusher.Flush()
	}
}
