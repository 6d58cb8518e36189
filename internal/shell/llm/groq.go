package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// Groq Client
// =============================================================================

// Groq serves an OpenAI-compatible chat-completions API.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
)

// Config holds configuration for the Groq client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration // ceiling for one full streamed completion
}

// DefaultConfig returns default Groq client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: 0.7,
		Timeout:     5 * time.Minute,
	}
}

// GroqClient implements ChatStreamer against Groq's OpenAI-compatible API.
type GroqClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewGroqClient creates a Groq chat client.
func NewGroqClient(cfg Config) *GroqClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &GroqClient{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Model returns the configured default model.
func (c *GroqClient) Model() string {
	return c.model
}

// StreamChat streams one chat completion, assembling content deltas and
// tool-call fragments into a Result. Tool-call fragments arrive keyed by
// index with the arguments split across chunks.
func (c *GroqClient) StreamChat(ctx context.Context, req Request, onDelta func(string)) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("create chat stream: %w", err)
	}
	defer stream.Close()

	var (
		result    Result
		toolCalls []openai.ToolCall
	)
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read chat stream: %w", err)
		}

		if response.Usage != nil {
			result.Usage.PromptTokens = response.Usage.PromptTokens
			result.Usage.CompletionTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.FinishReason != "" {
			result.FinishReason = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			result.Content += choice.Delta.Content
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
		toolCalls = mergeToolCallDeltas(toolCalls, choice.Delta.ToolCalls)
	}

	for _, call := range toolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return &result, nil
}

func (c *GroqClient) buildRequest(req Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	out := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	for _, msg := range req.Messages {
		converted := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, converted)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

// mergeToolCallDeltas folds one chunk's tool-call fragments into the
// accumulator. The first fragment of a call carries ID and name; later
// fragments append argument JSON.
func mergeToolCallDeltas(acc []openai.ToolCall, deltas []openai.ToolCall) []openai.ToolCall {
	for _, delta := range deltas {
		idx := 0
		if delta.Index != nil {
			idx = *delta.Index
		}
		for len(acc) <= idx {
			acc = append(acc, openai.ToolCall{})
		}
		call := &acc[idx]
		if delta.ID != "" {
			call.ID = delta.ID
		}
		if delta.Type != "" {
			call.Type = delta.Type
		}
		if delta.Function.Name != "" {
			call.Function.Name += delta.Function.Name
		}
		call.Function.Arguments += delta.Function.Arguments
	}
	return acc
}
