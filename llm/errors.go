// ABOUTME: Error hierarchy for the multi-provider LLM gateway.
// ABOUTME: Defines structured provider error types with retryability used by the fallback policy.

package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// GatewayError is the base error type for all errors produced by the gateway.
// All other error types embed GatewayError either directly or transitively.
type GatewayError struct {
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns false for the base GatewayError. Subtypes override this.
func (e *GatewayError) IsRetryable() bool {
	return false
}

// ProviderError represents an error returned by a provider's API. It carries
// provider-specific metadata including status code and the raw error body.
type ProviderError struct {
	GatewayError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64 // seconds, from the retry-after header if present
	Raw        json.RawMessage
}

func (e *ProviderError) Error() string { return e.GatewayError.Error() }
func (e *ProviderError) Unwrap() error { return e.GatewayError.Unwrap() }

// IsRetryable returns the Retryable flag set on the provider error.
func (e *ProviderError) IsRetryable() bool { return e.Retryable }

// AuthenticationError represents a 401/403 response. Not retryable; the
// fallback policy skips straight to the next provider.
type AuthenticationError struct {
	ProviderError
}

func (e *AuthenticationError) Error() string     { return e.ProviderError.Error() }
func (e *AuthenticationError) Unwrap() error     { return e.ProviderError.Unwrap() }
func (e *AuthenticationError) IsRetryable() bool { return false }

func (e *AuthenticationError) As(target any) bool {
	if t, ok := target.(**ProviderError); ok {
		*t = &e.ProviderError
		return true
	}
	return false
}

// QuotaExceededError represents quota exhaustion for a provider. Not
// retryable against the same provider.
type QuotaExceededError struct {
	ProviderError
}

func (e *QuotaExceededError) Error() string     { return e.ProviderError.Error() }
func (e *QuotaExceededError) Unwrap() error     { return e.ProviderError.Unwrap() }
func (e *QuotaExceededError) IsRetryable() bool { return false }

func (e *QuotaExceededError) As(target any) bool {
	if t, ok := target.(**ProviderError); ok {
		*t = &e.ProviderError
		return true
	}
	return false
}

// RateLimitError represents a 429 Too Many Requests response. Retryable.
type RateLimitError struct {
	ProviderError
}

func (e *RateLimitError) Error() string     { return e.ProviderError.Error() }
func (e *RateLimitError) Unwrap() error     { return e.ProviderError.Unwrap() }
func (e *RateLimitError) IsRetryable() bool { return true }

func (e *RateLimitError) As(target any) bool {
	if t, ok := target.(**ProviderError); ok {
		*t = &e.ProviderError
		return true
	}
	return false
}

// ServerError represents a 5xx server error response. Retryable.
type ServerError struct {
	ProviderError
}

func (e *ServerError) Error() string     { return e.ProviderError.Error() }
func (e *ServerError) Unwrap() error     { return e.ProviderError.Unwrap() }
func (e *ServerError) IsRetryable() bool { return true }

func (e *ServerError) As(target any) bool {
	if t, ok := target.(**ProviderError); ok {
		*t = &e.ProviderError
		return true
	}
	return false
}

// InvalidRequestError represents a 400/404/413/422 response. Not retryable.
type InvalidRequestError struct {
	ProviderError
}

func (e *InvalidRequestError) Error() string     { return e.ProviderError.Error() }
func (e *InvalidRequestError) Unwrap() error     { return e.ProviderError.Unwrap() }
func (e *InvalidRequestError) IsRetryable() bool { return false }

func (e *InvalidRequestError) As(target any) bool {
	if t, ok := target.(**ProviderError); ok {
		*t = &e.ProviderError
		return true
	}
	return false
}

// RequestTimeoutError represents a request timeout (408 or a client-side
// deadline). Retryable.
type RequestTimeoutError struct {
	GatewayError
}

func (e *RequestTimeoutError) Error() string     { return e.GatewayError.Error() }
func (e *RequestTimeoutError) Unwrap() error     { return e.GatewayError.Unwrap() }
func (e *RequestTimeoutError) IsRetryable() bool { return true }

// NetworkError represents a network-level failure (DNS, connection refused,
// reset mid-body). Retryable.
type NetworkError struct {
	GatewayError
}

func (e *NetworkError) Error() string     { return e.GatewayError.Error() }
func (e *NetworkError) Unwrap() error     { return e.GatewayError.Unwrap() }
func (e *NetworkError) IsRetryable() bool { return true }

// MalformedOutputError represents provider output that failed structural
// validation (bad JSON, missing required sections). Retryable: the same
// provider may produce valid output on a subsequent attempt.
type MalformedOutputError struct {
	GatewayError
}

func (e *MalformedOutputError) Error() string     { return e.GatewayError.Error() }
func (e *MalformedOutputError) Unwrap() error     { return e.GatewayError.Unwrap() }
func (e *MalformedOutputError) IsRetryable() bool { return true }

// ConfigurationError represents a gateway configuration problem (missing API
// key, unknown provider). Not retryable.
type ConfigurationError struct {
	GatewayError
}

func (e *ConfigurationError) Error() string     { return e.GatewayError.Error() }
func (e *ConfigurationError) Unwrap() error     { return e.GatewayError.Unwrap() }
func (e *ConfigurationError) IsRetryable() bool { return false }

// IsRetryable reports whether err is a transient failure eligible for another
// attempt against the same provider. Errors that do not implement the
// retryable interface are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// RetryAfterHint extracts a provider-supplied retry-after duration in seconds
// from err, if present.
func RetryAfterHint(err error) (float64, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.RetryAfter != nil {
		return *pe.RetryAfter, true
	}
	return 0, false
}

// WrapTransportError converts a transport-level error from an HTTP round trip
// into the gateway taxonomy: context deadlines become RequestTimeoutError,
// everything else becomes NetworkError.
func WrapTransportError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{GatewayError: GatewayError{
			Message: "request to " + provider + " timed out",
			Cause:   err,
		}}
	}
	return &NetworkError{GatewayError: GatewayError{
		Message: "request to " + provider + " failed",
		Cause:   err,
	}}
}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
// Unknown status codes are treated as retryable server-side trouble
// (conservative default).
func ErrorFromStatusCode(statusCode int, message, provider string, raw json.RawMessage, retryAfter *float64) error {
	base := ProviderError{
		GatewayError: GatewayError{Message: message},
		Provider:     provider,
		StatusCode:   statusCode,
		Raw:          raw,
		RetryAfter:   retryAfter,
	}

	switch {
	case statusCode == 401 || statusCode == 403:
		base.Retryable = false
		return &AuthenticationError{ProviderError: base}
	case statusCode == 408:
		return &RequestTimeoutError{GatewayError: GatewayError{Message: message}}
	case statusCode == 400 || statusCode == 404 || statusCode == 413 || statusCode == 422:
		base.Retryable = false
		return &InvalidRequestError{ProviderError: base}
	case statusCode == 429:
		base.Retryable = true
		return &RateLimitError{ProviderError: base}
	case statusCode >= 500 && statusCode <= 599:
		base.Retryable = true
		return &ServerError{ProviderError: base}
	default:
		base.Retryable = true
		return &base
	}
}
