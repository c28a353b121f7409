// ABOUTME: OpenAI Chat Completions provider adapter built on the official openai-go SDK.
// ABOUTME: Supports custom base URLs for OpenAI-compatible services and maps SDK errors into the gateway taxonomy.

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAdapter implements ProviderAdapter using the OpenAI Chat Completions
// API via the official SDK. A custom base URL makes it work against any
// OpenAI-compatible service.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

// OpenAIOption is a functional option for configuring an OpenAIAdapter.
type OpenAIOption func(*[]option.RequestOption)

// WithOpenAIBaseURL sets a custom base URL for OpenAI-compatible providers.
func WithOpenAIBaseURL(u string) OpenAIOption {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithBaseURL(u))
	}
}

// WithOpenAITimeout bounds each request made by the adapter.
func WithOpenAITimeout(timeout AdapterTimeout) OpenAIOption {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithRequestTimeout(timeout.Request))
	}
}

// NewOpenAIAdapter creates an OpenAIAdapter with the given API key, default
// model, and options.
func NewOpenAIAdapter(apiKey, model string, opts ...OpenAIOption) *OpenAIAdapter {
	// The SDK retries 429/5xx on its own; the fallback policy owns retries,
	// so the adapter stays single-attempt.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	for _, opt := range opts {
		opt(&reqOpts)
	}
	return &OpenAIAdapter{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

// Name returns the provider name "openai".
func (a *OpenAIAdapter) Name() string { return "openai" }

// Close releases adapter resources. No-op for the SDK client.
func (a *OpenAIAdapter) Close() error { return nil }

// Complete sends a Chat Completions request and returns the unified response.
// JSONMode is expressed as a system instruction rather than response_format so
// it behaves identically across OpenAI-compatible backends.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	params := openai.ChatCompletionNewParams{
		Model: model,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	var messages []openai.ChatCompletionMessageParamUnion
	system, rest := req.SystemText()
	if req.JSONMode {
		instruction := "Return your response as a valid JSON document with no surrounding prose."
		if system != "" {
			system = system + "\n\n" + instruction
		} else {
			system = instruction
		}
	}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, m := range rest {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	params.Messages = messages

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.mapError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &MalformedOutputError{GatewayError: GatewayError{
			Message: "openai returned no choices",
		}}
	}

	out := &Response{
		Text:     resp.Choices[0].Message.Content,
		Provider: a.Name(),
		Model:    resp.Model,
	}
	if out.Model == "" {
		out.Model = model
	}
	out.Usage = &Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	return out, nil
}

// mapError converts SDK errors into the gateway taxonomy. API errors carry a
// status code; everything else is transport-level.
func (a *OpenAIAdapter) mapError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		message := fmt.Sprintf("openai request failed with status %d", apierr.StatusCode)
		lower := strings.ToLower(err.Error())
		// The API reports exhausted billing quota as a 429 with the
		// insufficient_quota code, which no amount of waiting fixes.
		if apierr.StatusCode == 429 && strings.Contains(lower, "insufficient_quota") {
			return &QuotaExceededError{ProviderError: ProviderError{
				GatewayError: GatewayError{Message: message, Cause: err},
				Provider:     a.Name(),
				StatusCode:   apierr.StatusCode,
			}}
		}
		return ErrorFromStatusCode(apierr.StatusCode, message, a.Name(), nil, nil)
	}
	return WrapTransportError(a.Name(), err)
}
