// ABOUTME: Tests for the OpenAI adapter against an httptest backend.
// ABOUTME: Validates message mapping, JSON-mode instruction, and SDK error classification.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxCompletionTokens int `json:"max_completion_tokens"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "generated text"}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter("test-key", "gpt-4o-mini", WithOpenAIBaseURL(server.URL))
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
	if resp.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", resp.Provider)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 30 {
		t.Errorf("Usage = %+v, want total 30", resp.Usage)
	}

	if captured.MaxCompletionTokens != 2048 {
		t.Errorf("max_completion_tokens = %d, want 2048", captured.MaxCompletionTokens)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("messages = %d, want system + user", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || !strings.Contains(captured.Messages[0].Content, "valid JSON document") {
		t.Errorf("system message = %+v, want JSON-mode instruction appended", captured.Messages[0])
	}
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
	}{
		{
			name:     "quota exhausted",
			status:   429,
			body:     `{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}}`,
			wantType: "*llm.QuotaExceededError",
		},
		{
			name:     "plain rate limit",
			status:   429,
			body:     `{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`,
			wantType: "*llm.RateLimitError",
		},
		{
			name:     "bad key",
			status:   401,
			body:     `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			wantType: "*llm.AuthenticationError",
		},
		{
			name:     "server error",
			status:   500,
			body:     `{"error": {"message": "The server had an error", "type": "server_error"}}`,
			wantType: "*llm.ServerError",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter("test-key", "gpt-4o-mini", WithOpenAIBaseURL(server.URL))
			_, err := adapter.Complete(context.Background(), Request{
				Messages: []Message{{Role: RoleUser, Content: "hello"}},
			})
			if err == nil {
				t.Fatal("Complete should fail")
			}
			if got := typeName(err); got != tt.wantType {
				t.Errorf("error type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestOpenAIEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "chatcmpl-1", "model": "gpt-4o-mini", "choices": []any{}})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter("test-key", "gpt-4o-mini", WithOpenAIBaseURL(server.URL))
	_, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})

	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Errorf("error = %v, want MalformedOutputError", err)
	}
}
