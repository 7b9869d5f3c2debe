// Package llm provides ports.LLMClient implementations: an OpenAI-compatible
// HTTP client, a retrying decorator and a deterministic offline client.
package llm

import (
	"fmt"
	"strings"
	"time"

	"reasoner/internal/domain/agent/ports"
	reasonerrors "reasoner/internal/errors"
	"reasoner/internal/logging"
)

const (
	ProviderOpenAI  = "openai"
	ProviderOffline = "offline"
)

// Config selects and configures a model backend.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Headers    map[string]string
	Logger     logging.Logger
}

// New builds the client described by cfg. Network clients are wrapped with
// retry and circuit breaker protection.
func New(cfg Config) (ports.LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOffline, "mock":
		return NewOfflineClient(), nil
	case ProviderOpenAI, "", "openrouter", "deepseek", "ollama":
		client, err := NewOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		policy := reasonerrors.DefaultRetryPolicy()
		if cfg.MaxRetries > 0 {
			policy.Retries = cfg.MaxRetries
		}
		return WithRetry(client, policy, reasonerrors.BreakerConfig{}, cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
