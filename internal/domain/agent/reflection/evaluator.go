// Package reflection judges produced answers and learns which strategies
// work for which kinds of query.
package reflection

import (
	"context"
	"fmt"
	"strings"

	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/logging"
	"reasoner/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	traceScopeReflection  = "reasoner.reflection"
	defaultRetryThreshold = 0.6
	maxContextInPrompt    = 3000
)

// ConfidenceLevel buckets an overall score.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "HIGH"
	ConfidenceMedium  ConfidenceLevel = "MEDIUM"
	ConfidenceLow     ConfidenceLevel = "LOW"
	ConfidenceVeryLow ConfidenceLevel = "VERY_LOW"
)

// LevelFor buckets score: HIGH above 0.8, MEDIUM above 0.5, LOW above 0.3.
func LevelFor(score float64) ConfidenceLevel {
	switch {
	case score > 0.8:
		return ConfidenceHigh
	case score > 0.5:
		return ConfidenceMedium
	case score > 0.3:
		return ConfidenceLow
	}
	return ConfidenceVeryLow
}

// Retry strategies suggested for weak answers.
const (
	RetryVerifySources = "verify_with_additional_sources"
	RetryMoreDetails   = "search_for_more_details"
	RetryReformulate   = "reformulate_query"
	RetryGeneral       = "general_retry"
)

// Scores are the four rated dimensions, each in [0,1].
type Scores struct {
	Relevance    float64 `json:"relevance"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Clarity      float64 `json:"clarity"`
}

// Mean is the unweighted average of the dimensions.
func (s Scores) Mean() float64 {
	return (s.Relevance + s.Completeness + s.Accuracy + s.Clarity) / 4
}

// weakest names the retry strategy for the lowest dimension. Ties go to
// accuracy, then completeness, then relevance.
func (s Scores) weakest() string {
	dims := []struct {
		score    float64
		strategy string
	}{
		{s.Accuracy, RetryVerifySources},
		{s.Completeness, RetryMoreDetails},
		{s.Relevance, RetryReformulate},
		{s.Clarity, RetryGeneral},
	}
	best := dims[0]
	for _, d := range dims[1:] {
		if d.score < best.score {
			best = d
		}
	}
	return best.strategy
}

// EvaluationInput is the answer to judge.
type EvaluationInput struct {
	Query    string
	Response string
	Context  string
	Sources  []ports.Source
}

// EvaluationResult is the judgement of one answer.
type EvaluationResult struct {
	Score           float64         `json:"score"`
	Scores          Scores          `json:"scores"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	Issues          []string        `json:"issues,omitempty"`
	Suggestions     []string        `json:"suggestions,omitempty"`
	ShouldRetry     bool            `json:"should_retry"`
	RetryStrategy   string          `json:"retry_strategy,omitempty"`
}

// EvaluatorConfig wires an Evaluator.
type EvaluatorConfig struct {
	Gateway        *gateway.Gateway
	RetryThreshold float64
	Logger         logging.Logger
	Metrics        *observability.Metrics
}

// Evaluator scores answers with one model call.
type Evaluator struct {
	gateway        *gateway.Gateway
	retryThreshold float64
	logger         logging.Logger
	metrics        *observability.Metrics
}

// NewEvaluator builds an Evaluator.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	threshold := cfg.RetryThreshold
	if threshold <= 0 {
		threshold = defaultRetryThreshold
	}
	return &Evaluator{
		gateway:        cfg.Gateway,
		retryThreshold: threshold,
		logger:         logging.WithComponent(cfg.Logger, "evaluator"),
		metrics:        cfg.Metrics,
	}
}

type evaluationPayload struct {
	Relevance    float64  `json:"relevance"`
	Completeness float64  `json:"completeness"`
	Accuracy     float64  `json:"accuracy"`
	Clarity      float64  `json:"clarity"`
	Issues       []string `json:"issues"`
	Suggestions  []string `json:"suggestions"`
}

const evaluatorSystemPrompt = `You grade an assistant's answer. Rate each dimension from 0 to 1:
relevance (addresses the question), completeness (covers every part),
accuracy (consistent with the context and sources), clarity (easy to follow).
Respond with a JSON object only:
{"relevance": 0.0, "completeness": 0.0, "accuracy": 0.0, "clarity": 0.0, "issues": ["..."], "suggestions": ["..."]}`

// Evaluate scores in. A failed model call yields a neutral result that does
// not ask for a retry.
func (e *Evaluator) Evaluate(ctx context.Context, in EvaluationInput) EvaluationResult {
	ctx, span := observability.StartSpan(ctx, traceScopeReflection, observability.SpanEvaluate)
	defer span.End()

	result := e.evaluate(ctx, in)
	span.SetAttributes(
		attribute.Float64("reasoner.evaluation.score", result.Score),
		attribute.Bool("reasoner.evaluation.retry", result.ShouldRetry),
	)
	e.metrics.ObserveEvaluation(result.Score)
	return result
}

func (e *Evaluator) evaluate(ctx context.Context, in EvaluationInput) EvaluationResult {
	if strings.TrimSpace(in.Response) == "" {
		return EvaluationResult{
			ConfidenceLevel: ConfidenceVeryLow,
			Issues:          []string{"the response is empty"},
			ShouldRetry:     true,
			RetryStrategy:   RetryGeneral,
		}
	}

	var payload evaluationPayload
	err := e.gateway.GenerateJSON(ctx, gateway.Prompt{
		Phase:       "evaluate",
		System:      evaluatorSystemPrompt,
		User:        buildEvaluationPrompt(in),
		Temperature: gateway.Temperature(0),
	}, &payload)
	if err != nil {
		e.logger.Warn("evaluation unavailable: %v", err)
		return EvaluationResult{
			Score:           e.retryThreshold,
			Scores:          Scores{e.retryThreshold, e.retryThreshold, e.retryThreshold, e.retryThreshold},
			ConfidenceLevel: LevelFor(e.retryThreshold),
			Issues:          []string{fmt.Sprintf("evaluation unavailable: %v", err)},
		}
	}

	scores := Scores{
		Relevance:    clamp01(payload.Relevance),
		Completeness: clamp01(payload.Completeness),
		Accuracy:     clamp01(payload.Accuracy),
		Clarity:      clamp01(payload.Clarity),
	}
	result := EvaluationResult{
		Score:       scores.Mean(),
		Scores:      scores,
		Issues:      payload.Issues,
		Suggestions: payload.Suggestions,
	}
	result.ConfidenceLevel = LevelFor(result.Score)
	if result.Score < e.retryThreshold {
		result.ShouldRetry = true
		result.RetryStrategy = scores.weakest()
	}
	return result
}

func buildEvaluationPrompt(in EvaluationInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:\n%s\n", in.Query, in.Response)
	if ctx := strings.TrimSpace(in.Context); ctx != "" {
		runes := []rune(ctx)
		if len(runes) > maxContextInPrompt {
			ctx = string(runes[:maxContextInPrompt]) + "..."
		}
		fmt.Fprintf(&b, "\nContext used:\n%s\n", ctx)
	}
	if len(in.Sources) > 0 {
		b.WriteString("\nSources:\n")
		for _, s := range in.Sources {
			if s.URL != "" {
				fmt.Fprintf(&b, "- %s (%s)\n", s.Title, s.URL)
			} else {
				fmt.Fprintf(&b, "- %s\n", s.Title)
			}
		}
	}
	return b.String()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
