// ABOUTME: Tests for the Gemini adapter using httptest servers.
// ABOUTME: Validates request construction, response parsing, and error body classification.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeminiComplete(t *testing.T) {
	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing key query parameter, URL = %s", r.URL.String())
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": "generated text"}}}},
			},
			"usageMetadata": map[string]any{
				"promptTokenCount":     100,
				"candidatesTokenCount": 50,
				"totalTokenCount":      150,
			},
		})
	}))
	defer server.Close()

	adapter := NewGeminiAdapter("test-key", "gemini-2.5-pro", WithGeminiBaseURL(server.URL))
	resp, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "hello"},
		},
		MaxTokens: 2048,
		JSONMode:  true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Text != "generated text" {
		t.Errorf("Text = %q, want %q", resp.Text, "generated text")
	}
	if resp.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", resp.Provider)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 150 {
		t.Errorf("Usage = %+v, want total 150", resp.Usage)
	}

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "be helpful" {
		t.Error("system message should map to systemInstruction")
	}
	if len(captured.Contents) != 1 || captured.Contents[0].Role != "user" {
		t.Errorf("contents = %+v, want one user turn", captured.Contents)
	}
	if captured.GenerationConfig.MaxOutputTokens != 2048 {
		t.Errorf("maxOutputTokens = %d, want 2048", captured.GenerationConfig.MaxOutputTokens)
	}
	if captured.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("responseMimeType = %q, want application/json", captured.GenerationConfig.ResponseMimeType)
	}
}

func TestGeminiErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
	}{
		{
			name:     "quota exhausted is permanent",
			status:   429,
			body:     `{"error":{"code":429,"message":"You exceeded your current quota","status":"RESOURCE_EXHAUSTED"}}`,
			wantType: "*llm.QuotaExceededError",
		},
		{
			name:     "rate limit is transient",
			status:   429,
			body:     `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check rate limits)","status":"RESOURCE_EXHAUSTED"}}`,
			wantType: "*llm.RateLimitError",
		},
		{
			name:     "server error is transient",
			status:   503,
			body:     `{"error":{"code":503,"message":"The model is overloaded","status":"UNAVAILABLE"}}`,
			wantType: "*llm.ServerError",
		},
		{
			name:     "bad key is auth",
			status:   401,
			body:     `{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`,
			wantType: "*llm.AuthenticationError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewGeminiAdapter("k", "gemini-2.5-pro", WithGeminiBaseURL(server.URL))
			_, err := adapter.Complete(context.Background(), Request{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := typeName(err); got != tt.wantType {
				t.Errorf("type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter("k", "gemini-2.5-pro", WithGeminiBaseURL(server.URL))
	_, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var mo *MalformedOutputError
	if !errors.As(err, &mo) {
		t.Fatalf("got %T, want *MalformedOutputError", err)
	}
	if !IsRetryable(err) {
		t.Error("empty candidates should be retryable")
	}
}

func TestGeminiMissingAPIKey(t *testing.T) {
	adapter := NewGeminiAdapter("", "gemini-2.5-pro")
	_, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("got %T, want *ConfigurationError", err)
	}
}
