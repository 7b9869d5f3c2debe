package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reasoner/internal/domain/agent/ports"
	reasonerrors "reasoner/internal/errors"
)

type flakyClient struct {
	errs  []error
	calls int
}

func (f *flakyClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return &ports.CompletionResponse{Content: "ok"}, nil
}

func (f *flakyClient) Model() string { return "flaky" }

func quickPolicy(retries int) reasonerrors.RetryPolicy {
	return reasonerrors.RetryPolicy{Retries: retries, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestRetryClientRetriesTransientErrors(t *testing.T) {
	mock := &flakyClient{errs: []error{errors.New("HTTP 429: rate limit"), errors.New("connection reset by peer")}}
	client := WithRetry(mock, quickPolicy(3), reasonerrors.BreakerConfig{}, nil)

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, mock.calls)
	assert.Equal(t, "flaky", client.Model())
}

func TestRetryClientStopsOnPermanentError(t *testing.T) {
	mock := &flakyClient{errs: []error{errors.New("HTTP 401: unauthorized")}}
	client := WithRetry(mock, quickPolicy(3), reasonerrors.BreakerConfig{}, nil)

	_, err := client.Complete(context.Background(), ports.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, reasonerrors.IsPermanent(err))
	assert.Equal(t, "The language model rejected the API key.", reasonerrors.UserMessage(err))
	assert.Equal(t, 1, mock.calls)
}

func TestRetryClientOpensBreaker(t *testing.T) {
	failures := make([]error, 20)
	for i := range failures {
		failures[i] = errors.New("503 service unavailable")
	}
	mock := &flakyClient{errs: failures}
	client := WithRetry(mock, quickPolicy(0), reasonerrors.BreakerConfig{Threshold: 2, Cooldown: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		_, err := client.Complete(context.Background(), ports.CompletionRequest{})
		require.Error(t, err)
	}
	_, err := client.Complete(context.Background(), ports.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, reasonerrors.IsUnavailable(err))
	assert.Equal(t, 2, mock.calls)
}

func TestClassifyLeavesUnknownErrors(t *testing.T) {
	err := errors.New("something odd")
	assert.Same(t, err, classify(err))
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
}
