// ABOUTME: Gemini provider adapter using the native generateContent REST API.
// ABOUTME: Uses query-parameter authentication and maps Gemini error bodies into the gateway taxonomy.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiAdapter implements ProviderAdapter for Google's Gemini API.
type GeminiAdapter struct {
	apiKey string
	model  string
	base   *BaseAdapter
}

// GeminiOption is a functional option for configuring a GeminiAdapter.
type GeminiOption func(*GeminiAdapter)

// WithGeminiBaseURL overrides the default Gemini API base URL.
func WithGeminiBaseURL(u string) GeminiOption {
	return func(a *GeminiAdapter) {
		a.base.BaseURL = u
	}
}

// WithGeminiTimeout sets custom timeout values for the adapter.
func WithGeminiTimeout(timeout AdapterTimeout) GeminiOption {
	return func(a *GeminiAdapter) {
		a.base = NewBaseAdapter("", a.base.BaseURL, timeout)
	}
}

// NewGeminiAdapter creates a GeminiAdapter with the given API key, default
// model, and options. The BaseAdapter API key is left empty so DoRequest
// does not add a Bearer token; authentication is a query parameter.
func NewGeminiAdapter(apiKey, model string, opts ...GeminiOption) *GeminiAdapter {
	adapter := &GeminiAdapter{
		apiKey: apiKey,
		model:  model,
		base:   NewBaseAdapter("", geminiDefaultBaseURL, DefaultAdapterTimeout()),
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Name returns the provider name "gemini".
func (a *GeminiAdapter) Name() string { return "gemini" }

// Close releases adapter resources. No-op for the HTTP adapter.
func (a *GeminiAdapter) Close() error { return nil }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Complete sends a generateContent request and returns the unified response.
func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if a.apiKey == "" {
		return nil, &ConfigurationError{GatewayError: GatewayError{Message: "gemini API key not configured"}}
	}

	model := req.Model
	if model == "" {
		model = a.model
	}

	body := a.buildRequest(req)
	path := fmt.Sprintf("/v1beta/models/%s:generateContent?key=%s", model, url.QueryEscape(a.apiKey))

	resp, err := a.base.DoRequest(ctx, a.Name(), path, body, nil)
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

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, &MalformedOutputError{GatewayError: GatewayError{
			Message: "gemini returned unparseable response body",
			Cause:   err,
		}}
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, &MalformedOutputError{GatewayError: GatewayError{
			Message: "gemini returned no candidates",
		}}
	}

	var text strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	out := &Response{
		Text:     text.String(),
		Provider: a.Name(),
		Model:    model,
	}
	if gr.UsageMetadata != nil {
		out.Usage = &Usage{
			InputTokens:  gr.UsageMetadata.PromptTokenCount,
			OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  gr.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

func (a *GeminiAdapter) buildRequest(req Request) geminiRequest {
	system, rest := req.SystemText()

	out := geminiRequest{}
	if system != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range rest {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	cfg := &geminiGenerationConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
	}
	if req.JSONMode {
		cfg.ResponseMimeType = "application/json"
	}
	out.GenerationConfig = cfg
	return out
}

// mapError converts a non-200 Gemini response into the gateway taxonomy.
// RESOURCE_EXHAUSTED with a quota mention is treated as quota exhaustion
// (permanent for this provider) rather than a rate limit.
func (a *GeminiAdapter) mapError(resp *http.Response, raw []byte) error {
	message := fmt.Sprintf("gemini request failed with status %d", resp.StatusCode)
	var eb geminiErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		message = eb.Error.Message
		if eb.Error.Status == "RESOURCE_EXHAUSTED" && strings.Contains(strings.ToLower(eb.Error.Message), "quota") {
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
