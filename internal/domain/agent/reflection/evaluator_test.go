package reflection

import (
	"context"
	"errors"
	"testing"

	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/agent/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluatorReplying(content string, err error) (*Evaluator, *mocks.MockLLMClient) {
	client := &mocks.MockLLMClient{
		CompleteFunc: func(context.Context, ports.CompletionRequest) (*ports.CompletionResponse, error) {
			if err != nil {
				return nil, err
			}
			return mocks.Reply(content), nil
		},
	}
	return NewEvaluator(EvaluatorConfig{Gateway: gateway.New(client, gateway.Config{})}), client
}

func TestEvaluateAveragesDimensions(t *testing.T) {
	e, client := evaluatorReplying(`{"relevance": 0.9, "completeness": 0.8, "accuracy": 1.0, "clarity": 0.9, "issues": []}`, nil)

	result := e.Evaluate(context.Background(), EvaluationInput{
		Query:    "What is Go?",
		Response: "Go is a programming language.",
		Sources:  []ports.Source{{Title: "go.dev", URL: "https://go.dev"}},
	})

	assert.InDelta(t, 0.9, result.Score, 1e-9)
	assert.Equal(t, ConfidenceHigh, result.ConfidenceLevel)
	assert.False(t, result.ShouldRetry)
	assert.Empty(t, result.RetryStrategy)
	prompt := client.Requests()[0].Messages[1].Content
	assert.Contains(t, prompt, "- go.dev (https://go.dev)")
}

func TestEvaluateChoosesRetryFromWeakestDimension(t *testing.T) {
	cases := map[string]struct {
		reply string
		want  string
	}{
		"accuracy":     {`{"relevance": 0.6, "completeness": 0.6, "accuracy": 0.1, "clarity": 0.6}`, RetryVerifySources},
		"completeness": {`{"relevance": 0.6, "completeness": 0.2, "accuracy": 0.5, "clarity": 0.6}`, RetryMoreDetails},
		"relevance":    {`{"relevance": 0.1, "completeness": 0.5, "accuracy": 0.5, "clarity": 0.6}`, RetryReformulate},
		"clarity":      {`{"relevance": 0.5, "completeness": 0.5, "accuracy": 0.5, "clarity": 0.2}`, RetryGeneral},
		"tie":          {`{"relevance": 0.3, "completeness": 0.3, "accuracy": 0.3, "clarity": 0.3}`, RetryVerifySources},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e, _ := evaluatorReplying(tc.reply, nil)
			result := e.Evaluate(context.Background(), EvaluationInput{Query: "q", Response: "a"})
			require.True(t, result.ShouldRetry)
			assert.Equal(t, tc.want, result.RetryStrategy)
		})
	}
}

func TestEvaluateFailureIsNeutral(t *testing.T) {
	e, _ := evaluatorReplying("", errors.New("timeout"))

	result := e.Evaluate(context.Background(), EvaluationInput{Query: "q", Response: "a"})

	assert.False(t, result.ShouldRetry)
	assert.Equal(t, 0.6, result.Score)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0], "evaluation unavailable")
}

func TestEvaluateEmptyResponseSkipsModel(t *testing.T) {
	e, client := evaluatorReplying(`{}`, nil)

	result := e.Evaluate(context.Background(), EvaluationInput{Query: "q", Response: "  "})

	assert.True(t, result.ShouldRetry)
	assert.Equal(t, ConfidenceVeryLow, result.ConfidenceLevel)
	assert.Empty(t, client.Requests())
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, LevelFor(0.81))
	assert.Equal(t, ConfidenceMedium, LevelFor(0.8))
	assert.Equal(t, ConfidenceMedium, LevelFor(0.51))
	assert.Equal(t, ConfidenceLow, LevelFor(0.5))
	assert.Equal(t, ConfidenceLow, LevelFor(0.31))
	assert.Equal(t, ConfidenceVeryLow, LevelFor(0.3))
}
