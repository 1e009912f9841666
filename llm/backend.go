package llm

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Backend type tags understood by BuildBackend.
const (
	BackendOpenRouter = "openrouter"
	BackendGollm      = "gollm"
	BackendEcho       = "echo"
)

// BackendConfig selects and parameterizes a model backend. Type is the
// dispatch tag; the remaining fields are interpreted per backend.
type BackendConfig struct {
	Type            string  `yaml:"type" mapstructure:"type"`
	Provider        string  `yaml:"provider" mapstructure:"provider"`
	Model           string  `yaml:"model" mapstructure:"model"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv       string  `yaml:"api_key_env" mapstructure:"api_key_env"`
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffS float64 `yaml:"initial_backoff_s" mapstructure:"initial_backoff_s"`
	MaxBackoffS     float64 `yaml:"max_backoff_s" mapstructure:"max_backoff_s"`
	TimeoutS        float64 `yaml:"timeout_s" mapstructure:"timeout_s"`
}

// withDefaults fills zero-valued retry knobs with the standard policy.
func (c BackendConfig) withDefaults() BackendConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 8
	}
	if c.InitialBackoffS == 0 {
		c.InitialBackoffS = 1.0
	}
	if c.MaxBackoffS == 0 {
		c.MaxBackoffS = 10.0
	}
	if c.TimeoutS == 0 {
		c.TimeoutS = 60.0
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	return c
}

// RetryPolicyFor derives the retry policy a backend built from this config
// should use.
func (c BackendConfig) RetryPolicyFor() RetryPolicy {
	cfg := c.withDefaults()
	return RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: time.Duration(cfg.InitialBackoffS * float64(time.Second)),
		MaxDelay:     time.Duration(cfg.MaxBackoffS * float64(time.Second)),
		Jitter:       true,
	}
}

// BuildBackend constructs the backend named by cfg.Type. Unknown tags are a
// configuration error, not a fallback.
func BuildBackend(cfg BackendConfig) (Backend, error) {
	cfg = cfg.withDefaults()
	switch cfg.Type {
	case BackendOpenRouter, "":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, FatalErr("openrouter", fmt.Sprintf("API key environment variable %s is not set", cfg.APIKeyEnv), nil)
		}
		return NewOpenRouterBackend(cfg, key), nil
	case BackendGollm:
		return NewGollmBackend(cfg)
	case BackendEcho:
		return NewEchoBackend(), nil
	default:
		return nil, FatalErr("factory", fmt.Sprintf("unknown backend type %q", cfg.Type), nil)
	}
}

// NormalizeModel expands bare qwen model names to their openrouter
// provider-qualified form.
func NormalizeModel(model string) string {
	if strings.HasPrefix(model, "qwen") && !strings.Contains(model, "/") {
		return "qwen/" + model
	}
	return model
}
