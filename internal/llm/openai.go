package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nugget/miniagent/internal/agenterr"
	"github.com/nugget/miniagent/internal/httpkit"
)

// OpenAIClient implements Client against any OpenAI-compatible
// chat-completions endpoint, configured via OPENAI_API_KEY and
// OPENAI_BASE_URL.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIClient builds a client against baseURL (empty means the
// public OpenAI API) using apiKey and model as the default model for
// every request.
func NewOpenAIClient(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	// Streaming responses have no fixed deadline, but a 429 (common on
	// shared-tier OpenAI-compatible endpoints) still gets a bounded retry
	// before the caller sees an error.
	cfg.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithRetry(2, 500*time.Millisecond))
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []ToolDef) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) Message {
	out := Message{
		Role:       Role(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

// Complete requests one full completion, returning any tool calls the
// model requested alongside its text.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, tools []ToolDef, temperature float64) (*CompletionResult, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Tools:       toOpenAITools(tools),
		Temperature: float32(temperature),
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, agenterr.LLMError("empty response from provider", nil)
	}
	choice := resp.Choices[0]

	return &CompletionResult{
		Message:      fromOpenAIMessage(choice.Message),
		FinishReason: string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Stream requests a streamed completion for the answer phase. The
// returned channel is closed once the stream ends or ctx is cancelled.
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, temperature float64) (<-chan StreamChunk, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(temperature),
		Stream:      true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, mapOpenAIError(err)
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		var inTok, outTok int
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case out <- StreamChunk{Done: true, InputTokens: inTok, OutputTokens: outTok}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				c.logger.Warn("llm stream error", "error", err)
				return
			}
			if resp.Usage != nil {
				inTok, outTok = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- StreamChunk{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return agenterr.LLMRateLimit(apiErr.Message)
		}
		return agenterr.LLMError(apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return agenterr.LLMRateLimit(reqErr.Error())
		}
		return agenterr.LLMError("request failed", err)
	}
	if errors.Is(err, context.Canceled) {
		return agenterr.Cancelled()
	}
	return agenterr.LLMError("provider call failed", err)
}
