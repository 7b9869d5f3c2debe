package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"reasoner/internal/domain/agent/ports"
	reasonerrors "reasoner/internal/errors"
	"reasoner/internal/logging"
)

const slowCompletion = 5 * time.Second

// retryClient retries transient model failures behind a circuit breaker.
type retryClient struct {
	underlying ports.LLMClient
	policy     reasonerrors.RetryPolicy
	breaker    *reasonerrors.Breaker
	logger     logging.Logger
}

// WithRetry wraps client with policy and a breaker named after its model.
func WithRetry(client ports.LLMClient, policy reasonerrors.RetryPolicy, breaker reasonerrors.BreakerConfig, logger logging.Logger) ports.LLMClient {
	if breaker.Logger == nil {
		breaker.Logger = logger
	}
	return &retryClient{
		underlying: client,
		policy:     policy,
		breaker:    reasonerrors.NewBreaker("llm:"+client.Model(), breaker),
		logger:     logging.WithComponent(logger, "llm-retry"),
	}
}

func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	started := time.Now()
	logger := logging.FromContext(ctx, c.logger)
	resp, err := reasonerrors.Do(ctx, c.policy, logger, func(ctx context.Context) (*ports.CompletionResponse, error) {
		return reasonerrors.Guard(ctx, c.breaker, func(ctx context.Context) (*ports.CompletionResponse, error) {
			out, err := c.underlying.Complete(ctx, req)
			return out, classify(err)
		})
	})

	elapsed := time.Since(started).Round(time.Millisecond)
	if err != nil {
		logger.Warn("%s completion failed after %s: %v", req.Phase(), elapsed, err)
		return nil, err
	}
	if elapsed > slowCompletion {
		logger.Debug("%s completion took %s", req.Phase(), elapsed)
	}
	return resp, nil
}

func (c *retryClient) Model() string { return c.underlying.Model() }

// classify labels errors from clients that do not classify their own, using
// the status codes and phrases providers put in error text.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || reasonerrors.Classify(err) != reasonerrors.KindUnknown {
		return err
	}
	lower := strings.ToLower(err.Error())
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("429", "rate limit"):
		return reasonerrors.Transient(err, "The language model is rate limited right now.")
	case has("502", "503", "504", "bad gateway", "service unavailable", "overloaded"):
		return reasonerrors.Transient(err, "The language model is temporarily unavailable.")
	case has("timeout", "connection reset", "connection refused"):
		return reasonerrors.Transient(err, "Could not reach the language model.")
	case has("401", "unauthorized", "invalid api key"):
		return reasonerrors.Permanent(err, "The language model rejected the API key.")
	case has("404", "model not found"):
		return reasonerrors.Permanent(err, "The configured model does not exist.")
	}
	return err
}
