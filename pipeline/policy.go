// ABOUTME: Retry and fallback policy for a single stage execution.
// ABOUTME: Transient errors retry the same provider with backoff; permanent errors advance to the next route.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starforge/starforge/llm"
)

// ErrAllProvidersExhausted is returned when every route in the fallback
// chain has been exhausted without a valid response.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// ProviderRoute names one provider/model pair in a stage's fallback chain.
type ProviderRoute struct {
	Provider string
	Model    string
}

func (r ProviderRoute) String() string {
	return r.Provider + "/" + r.Model
}

// BackoffConfig controls the delay between retries against the same
// provider. The delay grows exponentially from BaseDelay, capped at
// MaxDelay. A Retry-After hint from the provider acts as a floor.
type BackoffConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultBackoff returns the standard retry schedule: 2s, 4s, 8s... capped
// at one minute.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		BaseDelay: 2 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// DelayForAttempt returns the delay before retry number attempt (1-based;
// there is no delay before the first attempt).
func (c BackoffConfig) DelayForAttempt(attempt int, lastErr error) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			delay = c.MaxDelay
			break
		}
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if hint, ok := llm.RetryAfterHint(lastErr); ok {
		hinted := time.Duration(hint * float64(time.Second))
		if hinted > delay {
			delay = hinted
		}
	}
	return delay
}

// StageResult is the outcome of a successful stage execution.
type StageResult struct {
	Text     string
	Provider string
	Model    string
	Usage    *llm.Usage
	Attempts int
}

// AttemptObserver is notified after every attempt. err is nil on success.
type AttemptObserver func(route ProviderRoute, attempt int, err error)

// FallbackPolicy executes one stage request against an ordered chain of
// provider routes. Each route gets up to MaxRetries attempts; an error
// classified as retryable stays on the same route, anything else moves on
// to the next. Output validation runs after every raw success, and a
// validation failure counts as a retryable attempt.
type FallbackPolicy struct {
	Client     *llm.Client
	MaxRetries int
	Backoff    BackoffConfig
	Observer   AttemptObserver
}

// NewFallbackPolicy returns a policy with the default backoff schedule.
func NewFallbackPolicy(client *llm.Client, maxRetries int) *FallbackPolicy {
	return &FallbackPolicy{
		Client:     client,
		MaxRetries: maxRetries,
		Backoff:    DefaultBackoff(),
	}
}

// Execute runs req against each route in order until one yields a valid
// response. The request's Provider and Model fields are overwritten per
// route. validate may be nil to skip output validation.
func (p *FallbackPolicy) Execute(ctx context.Context, req llm.Request, routes []ProviderRoute, validate OutputValidator) (*StageResult, error) {
	if len(routes) == 0 {
		return nil, &llm.ConfigurationError{GatewayError: llm.GatewayError{Message: "no provider routes configured"}}
	}

	totalAttempts := 0
	var lastErr error

	for _, route := range routes {
		var routeErr error
		for attempt := 1; attempt <= p.MaxRetries; attempt++ {
			if delay := p.Backoff.DelayForAttempt(attempt-1, routeErr); delay > 0 {
				if err := sleepCtx(ctx, delay); err != nil {
					return nil, err
				}
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			routed := req
			routed.Provider = route.Provider
			routed.Model = route.Model

			totalAttempts++
			resp, err := p.Client.Complete(ctx, routed)
			if err == nil && validate != nil {
				if verr := validate(resp.Text); verr != nil {
					err = &llm.MalformedOutputError{GatewayError: llm.GatewayError{
						Message: fmt.Sprintf("%s returned malformed output: %v", route, verr),
						Cause:   verr,
					}}
				}
			}
			if p.Observer != nil {
				p.Observer(route, attempt, err)
			}
			if err == nil {
				return &StageResult{
					Text:     resp.Text,
					Provider: resp.Provider,
					Model:    resp.Model,
					Usage:    resp.Usage,
					Attempts: totalAttempts,
				}, nil
			}

			routeErr = err
			lastErr = err
			if !llm.IsRetryable(err) {
				break
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrAllProvidersExhausted, totalAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
