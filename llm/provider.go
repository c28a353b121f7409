// ABOUTME: ProviderAdapter interface and shared HTTP plumbing for the LLM gateway.
// ABOUTME: BaseAdapter handles request building, auth headers, and retry-after header parsing.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
)

// ProviderAdapter is the interface all provider backends implement. A single
// Complete call is one attempt against one backend with the adapter's
// configured timeout; retry and fallback live entirely in the caller.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// BaseAdapter provides common HTTP functionality shared across provider
// adapters: request encoding, header management, and error mapping.
type BaseAdapter struct {
	APIKey         string
	BaseURL        string
	DefaultHeaders map[string]string
	Timeout        AdapterTimeout
	HTTPClient     *http.Client
}

// NewBaseAdapter creates a BaseAdapter with the given API key, base URL, and
// timeout configuration.
func NewBaseAdapter(apiKey, baseURL string, timeout AdapterTimeout) *BaseAdapter {
	return &BaseAdapter{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		DefaultHeaders: make(map[string]string),
		Timeout:        timeout,
		HTTPClient: &http.Client{
			Timeout: timeout.Request,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: timeout.Connect}).DialContext,
			},
		},
	}
}

// DoRequest builds and executes an HTTP POST against the provider's API.
// It JSON-encodes the body, sets authorization and content type headers,
// applies default headers, then per-request header overrides. Transport
// failures are mapped into the gateway error taxonomy.
func (b *BaseAdapter) DoRequest(ctx context.Context, providerName, path string, body any, headers map[string]string) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+path, bytes.NewBuffer(encoded))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if b.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	for k, v := range b.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := b.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, WrapTransportError(providerName, err)
	}
	return resp, nil
}

// RetryAfterSeconds parses the retry-after header into seconds, if present.
func RetryAfterSeconds(headers http.Header) *float64 {
	v := headers.Get("retry-after")
	if v == "" {
		return nil
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &seconds
}
