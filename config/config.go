// ABOUTME: YAML configuration loading and validation for the pipeline runner.
// ABOUTME: Declares the run dimensions, provider credentials, per-stage fallback chains, and retry tuning.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runner configuration, loaded from one YAML file.
// API keys never live in the file; each provider names the environment
// variable that carries its key.
type Config struct {
	Roles      []string `yaml:"roles"`
	Questions  []string `yaml:"questions"`
	Industries []string `yaml:"industries"`
	Variants   int      `yaml:"variants"`

	StateDB   string `yaml:"state_db"`
	OutputDir string `yaml:"output_dir"`

	Templates map[string]string          `yaml:"templates"`
	Providers map[string]ProviderConfig  `yaml:"providers"`
	Stages    map[string][]StageProvider `yaml:"stages"`

	Retry   RetryConfig   `yaml:"retry"`
	Request RequestConfig `yaml:"request"`

	Serve string `yaml:"serve,omitempty"`
}

// ProviderConfig declares one provider backend.
type ProviderConfig struct {
	Kind      string `yaml:"kind"` // gemini | anthropic | openai
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

// StageProvider is one entry in a stage's ordered fallback chain.
type StageProvider struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// RetryConfig tunes the per-provider retry loop.
type RetryConfig struct {
	MaxRetries       int     `yaml:"max_retries"`
	BaseDelaySeconds float64 `yaml:"base_delay_seconds"`
	MaxDelaySeconds  float64 `yaml:"max_delay_seconds"`
}

// RequestConfig tunes every provider request.
type RequestConfig struct {
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// StageNames is the fixed stage vocabulary the stages map may use.
var StageNames = []string{"subprompt", "star_answer", "conversational"}

// Load reads, parses, defaults, and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Variants == 0 {
		c.Variants = 1
	}
	if c.StateDB == "" {
		c.StateDB = "state/pipeline.db"
	}
	if c.OutputDir == "" {
		c.OutputDir = "generated_answers"
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BaseDelaySeconds == 0 {
		c.Retry.BaseDelaySeconds = 2
	}
	if c.Retry.MaxDelaySeconds == 0 {
		c.Retry.MaxDelaySeconds = 60
	}
	if c.Request.TimeoutSeconds == 0 {
		c.Request.TimeoutSeconds = 120
	}
}

// Validate checks the configuration is complete enough to run. Errors here
// are fatal at startup.
func (c *Config) Validate() error {
	if len(c.Roles) == 0 {
		return fmt.Errorf("roles must not be empty")
	}
	if len(c.Questions) == 0 {
		return fmt.Errorf("questions must not be empty")
	}
	if len(c.Industries) == 0 {
		return fmt.Errorf("industries must not be empty")
	}
	if c.Variants < 1 {
		return fmt.Errorf("variants must be at least 1, got %d", c.Variants)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	for name, p := range c.Providers {
		switch p.Kind {
		case "gemini", "anthropic", "openai":
		case "":
			return fmt.Errorf("provider %q missing kind", name)
		default:
			return fmt.Errorf("provider %q has unknown kind %q", name, p.Kind)
		}
		if p.APIKeyEnv == "" {
			return fmt.Errorf("provider %q missing api_key_env", name)
		}
	}

	known := make(map[string]bool, len(StageNames))
	for _, s := range StageNames {
		known[s] = true
	}
	for _, stage := range StageNames {
		chain, ok := c.Stages[stage]
		if !ok || len(chain) == 0 {
			return fmt.Errorf("stage %q has no provider chain", stage)
		}
		for i, sp := range chain {
			if sp.Provider == "" || sp.Model == "" {
				return fmt.Errorf("stage %q entry %d needs both provider and model", stage, i+1)
			}
			if _, ok := c.Providers[sp.Provider]; !ok {
				return fmt.Errorf("stage %q references unknown provider %q", stage, sp.Provider)
			}
		}
	}
	for stage := range c.Stages {
		if !known[stage] {
			return fmt.Errorf("unknown stage %q in stages map", stage)
		}
	}

	for _, stage := range StageNames {
		if c.Templates[stage] == "" {
			return fmt.Errorf("no template configured for stage %q", stage)
		}
	}

	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1")
	}
	return nil
}

// APIKey resolves the provider's key from the environment.
func (p ProviderConfig) APIKey() (string, error) {
	key := os.Getenv(p.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", p.APIKeyEnv)
	}
	return key, nil
}

// BaseDelay returns the retry base delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySeconds * float64(time.Second))
}

// MaxDelay returns the retry delay cap as a duration.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelaySeconds * float64(time.Second))
}

// Timeout returns the per-request timeout as a duration.
func (r RequestConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}
