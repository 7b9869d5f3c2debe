// Package gateway adapts a raw LLMClient into the two capabilities the
// reasoning core needs: free text generation and typed structured output.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/logging"
	jsonx "reasoner/internal/shared/json"
)

var (
	// ErrMalformedOutput reports model output that could not be decoded even after repair.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrEmptyResponse reports a completion with no content.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrNoClient reports a gateway built without a backing client.
	ErrNoClient = errors.New("no language model configured")
)

// Prompt is one gateway call.
type Prompt struct {
	Phase       string
	System      string
	History     []ports.Message
	User        string
	Temperature *float64
	MaxTokens   int
	Schema      *ports.ResponseFormat
}

// Config tunes gateway defaults.
type Config struct {
	Temperature float64
	MaxTokens   int
	Logger      logging.Logger
}

// Gateway issues prompts against an LLMClient.
type Gateway struct {
	client      ports.LLMClient
	temperature float64
	maxTokens   int
	logger      logging.Logger
}

// New builds a gateway around client.
func New(client ports.LLMClient, cfg Config) *Gateway {
	return &Gateway{
		client:      client,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logging.WithComponent(cfg.Logger, "gateway"),
	}
}

// Model reports the backing model name.
func (g *Gateway) Model() string {
	if g == nil || g.client == nil {
		return ""
	}
	return g.client.Model()
}

// Generate returns the model's free-text answer to p.
func (g *Gateway) Generate(ctx context.Context, p Prompt) (string, error) {
	if g == nil || g.client == nil {
		return "", ErrNoClient
	}
	resp, err := g.client.Complete(ctx, g.request(p))
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", phaseName(p), err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%s completion: %w", phaseName(p), ErrEmptyResponse)
	}
	return strings.TrimSpace(resp.Content), nil
}

// GenerateJSON decodes the model's answer to p into out. Output wrapped in
// prose or code fences, or with minor syntax damage, is still accepted.
func (g *Gateway) GenerateJSON(ctx context.Context, p Prompt, out any) error {
	content, err := g.Generate(ctx, p)
	if err != nil {
		return err
	}
	if err := jsonx.UnmarshalLenient(content, out); err != nil {
		g.logger.Debug("%s output rejected: %v; raw=%q", phaseName(p), err, truncate(content, 200))
		return fmt.Errorf("%s: %w: %v", phaseName(p), ErrMalformedOutput, err)
	}
	return nil
}

func (g *Gateway) request(p Prompt) ports.CompletionRequest {
	messages := make([]ports.Message, 0, len(p.History)+2)
	if p.System != "" {
		messages = append(messages, ports.Message{Role: ports.RoleSystem, Content: p.System})
	}
	messages = append(messages, p.History...)
	messages = append(messages, ports.Message{Role: ports.RoleUser, Content: p.User})

	temperature := g.temperature
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	maxTokens := g.maxTokens
	if p.MaxTokens > 0 {
		maxTokens = p.MaxTokens
	}

	req := ports.CompletionRequest{
		Messages:       messages,
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: p.Schema,
	}
	if p.Phase != "" {
		req.Metadata = map[string]any{ports.MetadataPhase: p.Phase}
	}
	return req
}

// Temperature is a helper for Prompt.Temperature literals.
func Temperature(v float64) *float64 { return &v }

func phaseName(p Prompt) string {
	if p.Phase == "" {
		return "llm"
	}
	return p.Phase
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
