// ABOUTME: Anthropic provider adapter for the Messages API (/v1/messages).
// ABOUTME: Uses x-api-key header auth and maps Anthropic error bodies into the gateway taxonomy.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultVersion = "2023-06-01"
	anthropicDefaultMaxToks = 4096
)

// AnthropicAdapter implements ProviderAdapter for the Anthropic Messages API.
type AnthropicAdapter struct {
	*BaseAdapter
	model   string
	version string
}

// AnthropicOption is a functional option for configuring an AnthropicAdapter.
type AnthropicOption func(*AnthropicAdapter)

// WithAnthropicBaseURL overrides the default Anthropic API base URL.
func WithAnthropicBaseURL(u string) AnthropicOption {
	return func(a *AnthropicAdapter) {
		a.BaseURL = u
	}
}

// WithAnthropicTimeout sets custom timeout values for the adapter.
func WithAnthropicTimeout(timeout AdapterTimeout) AnthropicOption {
	return func(a *AnthropicAdapter) {
		headers := a.DefaultHeaders
		a.BaseAdapter = NewBaseAdapter("", a.BaseURL, timeout)
		a.DefaultHeaders = headers
	}
}

// WithAnthropicVersion sets the anthropic-version header value.
func WithAnthropicVersion(version string) AnthropicOption {
	return func(a *AnthropicAdapter) {
		a.version = version
	}
}

// NewAnthropicAdapter creates an AnthropicAdapter with the given API key,
// default model, and options. Authentication uses the x-api-key header, not a
// Bearer token, so the key lives in DefaultHeaders.
func NewAnthropicAdapter(apiKey, model string, opts ...AnthropicOption) *AnthropicAdapter {
	adapter := &AnthropicAdapter{
		BaseAdapter: NewBaseAdapter("", anthropicDefaultBaseURL, DefaultAdapterTimeout()),
		model:       model,
		version:     anthropicDefaultVersion,
	}
	adapter.DefaultHeaders["x-api-key"] = apiKey

	for _, opt := range opts {
		opt(adapter)
	}
	adapter.DefaultHeaders["anthropic-version"] = adapter.version
	return adapter
}

// Name returns the provider name "anthropic".
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Close releases adapter resources. No-op for the HTTP adapter.
func (a *AnthropicAdapter) Close() error { return nil }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a Messages API request and returns the unified response.
// Anthropic has no native JSON mode; JSONMode requests append an instruction
// to the system prompt instead.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if a.DefaultHeaders["x-api-key"] == "" {
		return nil, &ConfigurationError{GatewayError: GatewayError{Message: "anthropic API key not configured"}}
	}

	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxToks
	}

	system, rest := req.SystemText()
	if req.JSONMode {
		instruction := "Return your response as a valid JSON document with no surrounding prose."
		if system != "" {
			system = system + "\n\n" + instruction
		} else {
			system = instruction
		}
	}

	body := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Temperature: req.Temperature,
	}
	for _, m := range rest {
		body.Messages = append(body.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := a.DoRequest(ctx, a.Name(), "/v1/messages", body, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapTransportError(a.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, a.mapError(resp, raw)
	}

	var ar anthropicResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, &MalformedOutputError{GatewayError: GatewayError{
			Message: "anthropic returned unparseable response body",
			Cause:   err,
		}}
	}

	var text strings.Builder
	for _, block := range ar.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &MalformedOutputError{GatewayError: GatewayError{
			Message: "anthropic returned no text content",
		}}
	}

	out := &Response{
		Text:     text.String(),
		Provider: a.Name(),
		Model:    ar.Model,
	}
	if out.Model == "" {
		out.Model = model
	}
	if ar.Usage != nil {
		out.Usage = &Usage{
			InputTokens:  ar.Usage.InputTokens,
			OutputTokens: ar.Usage.OutputTokens,
			TotalTokens:  ar.Usage.InputTokens + ar.Usage.OutputTokens,
		}
	}
	return out, nil
}

// mapError converts a non-200 Anthropic response into the gateway taxonomy.
// The API reports quota exhaustion as a 429 with a billing/credit message,
// which is permanent for this provider.
func (a *AnthropicAdapter) mapError(resp *http.Response, raw []byte) error {
	message := fmt.Sprintf("anthropic request failed with status %d", resp.StatusCode)
	var eb anthropicErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		message = eb.Error.Message
		lower := strings.ToLower(eb.Error.Message)
		if resp.StatusCode == http.StatusTooManyRequests &&
			(strings.Contains(lower, "credit") || strings.Contains(lower, "quota")) {
			return &QuotaExceededError{ProviderError: ProviderError{
				GatewayError: GatewayError{Message: message},
				Provider:     a.Name(),
				StatusCode:   resp.StatusCode,
				Raw:          raw,
			}}
		}
	}
	return ErrorFromStatusCode(resp.StatusCode, message, a.Name(), raw, RetryAfterSeconds(resp.Header))
}
