// ABOUTME: Client registry routing generation requests to named provider adapters.
// ABOUTME: Provides NewClient with functional options; knows nothing about retries or stages.

package llm

import (
	"context"
	"fmt"
)

// Client is the entry point for making generation calls. It owns the set of
// configured provider adapters and routes each Request to the adapter named
// by its Provider field.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithProvider registers a ProviderAdapter under the given name. The first
// provider registered becomes the default if none has been set.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
		if c.defaultProvider == "" {
			c.defaultProvider = name
		}
	}
}

// WithDefaultProvider sets the provider used when a Request does not name one.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// NewClient creates a Client with the given options applied.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{providers: make(map[string]ProviderAdapter)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers returns the names of all registered adapters.
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	return names
}

// Has reports whether an adapter is registered under the given name.
func (c *Client) Has(name string) bool {
	_, ok := c.providers[name]
	return ok
}

// Complete routes the request to the named provider and performs a single
// attempt. An unknown provider is a ConfigurationError, never retried.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{GatewayError: GatewayError{
			Message: fmt.Sprintf("no provider registered under %q", name),
		}}
	}
	return adapter.Complete(ctx, req)
}

// Close closes all registered adapters, returning the first error observed.
func (c *Client) Close() error {
	var first error
	for _, adapter := range c.providers {
		if err := adapter.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
