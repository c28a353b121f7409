// ABOUTME: Core data model types for the multi-provider LLM gateway.
// ABOUTME: Defines Message, Request, Response, Usage, and adapter timeout configuration.

package llm

import "time"

// Role represents who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a generation request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic generation request. Provider selects which
// registered adapter handles the call; Model overrides the adapter's default
// model when non-empty.
type Request struct {
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	JSONMode    bool      `json:"json_mode,omitempty"`
}

// SystemText returns the concatenated content of all system messages, joined
// by newlines, along with the remaining non-system messages. Providers that
// take the system prompt out-of-band (Anthropic, Gemini) use this to split
// the request.
func (r Request) SystemText() (string, []Message) {
	var system string
	var rest []Message
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
		} else {
			rest = append(rest, m)
		}
	}
	return system, rest
}

// Usage reports token consumption for a completed request, when the provider
// supplies it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the uniform result of a successful generation call.
type Response struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Usage    *Usage `json:"usage,omitempty"`
}

// AdapterTimeout configures HTTP timeouts for a provider adapter.
type AdapterTimeout struct {
	// Connect bounds connection establishment.
	Connect time.Duration
	// Request bounds the entire request including response body.
	Request time.Duration
}

// DefaultAdapterTimeout returns the default timeout configuration:
// 10s connect, 120s request.
func DefaultAdapterTimeout() AdapterTimeout {
	return AdapterTimeout{
		Connect: 10 * time.Second,
		Request: 120 * time.Second,
	}
}
