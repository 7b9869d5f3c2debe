package react

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reasoner/internal/async"
	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	phaseThink      = "think"
	phaseVerify     = "verify"
	phaseCorrect    = "self_correct"
	phaseSynthesize = "synthesis"

	fallbackConfidence = 0.3
	apologyAnswer      = "I'm sorry, I could not work out a reliable answer to this question. Please try rephrasing it or adding more detail."
)

var errEmptyAction = errors.New("model output has no action")

// think asks the model for the next ThoughtAction. Failures never escape:
// they become a low-confidence FINAL_ANSWER apology and degraded=true.
func (e *ReactEngine) think(ctx context.Context, prompt string) (ThoughtAction, bool) {
	var ta ThoughtAction
	err := e.gateway.GenerateJSON(ctx, gateway.Prompt{
		Phase:  phaseThink,
		System: e.thinkSystem(),
		User:   prompt,
		Schema: thinkSchema,
	}, &ta)
	if err == nil {
		ta, err = normalizeThought(ta)
	}
	if err != nil {
		e.logger.Warn("think failed, degrading to apology: %v", err)
		return ThoughtAction{
			Thought:     fmt.Sprintf("Reasoning failed (%v); returning a low-confidence answer.", err),
			Action:      ActionFinalAnswer,
			ActionInput: apologyAnswer,
			Confidence:  fallbackConfidence,
		}, true
	}
	return ta, false
}

func normalizeThought(ta ThoughtAction) (ThoughtAction, error) {
	if strings.TrimSpace(string(ta.Action)) == "" {
		return ta, errEmptyAction
	}
	ta.Action, _ = ParseAction(string(ta.Action))
	ta.Thought = strings.TrimSpace(ta.Thought)
	ta.ActionInput = strings.TrimSpace(ta.ActionInput)
	ta.Confidence = clamp01(ta.Confidence)
	return ta, nil
}

// act invokes the tool behind ta.Action. A missing tool or a failing tool
// produces an unsuccessful observation, never an error.
func (e *ReactEngine) act(ctx context.Context, ta ThoughtAction) Observation {
	tool := ta.Action.ToolName()
	if e.tools == nil || !e.tools.Has(tool) {
		e.metrics.IncToolInvocation(tool, "not_found")
		return Observation{
			Content: fmt.Sprintf("No tool is registered for action %s.", ta.Action),
			Error:   fmt.Sprintf("%v: %s", ports.ErrToolNotFound, tool),
		}
	}

	ctx, span := observability.StartSpan(ctx, traceScopeReact, observability.SpanToolInvoke,
		attribute.String(observability.AttrToolName, tool))
	defer span.End()

	var res ports.ToolResult
	err := async.Safe(e.logger, "tool "+tool, func() error {
		var invokeErr error
		res, invokeErr = e.tools.Invoke(ctx, tool, ta.ActionInput)
		return invokeErr
	})
	observability.MarkSpanResult(span, err)
	if err != nil {
		e.logger.Warn("tool %s failed: %v", tool, err)
		return Observation{
			Content: fmt.Sprintf("Tool %s failed: %v", tool, err),
			Error:   err.Error(),
		}
	}
	return Observation{Content: res.Content, Sources: res.Sources, Success: true}
}

type verificationPayload struct {
	IsValid       *bool    `json:"is_valid"`
	QualityScore  float64  `json:"quality_score"`
	Issues        []string `json:"issues"`
	ShouldRetry   bool     `json:"should_retry"`
	RetryStrategy string   `json:"retry_strategy"`
}

// verify judges obs against the query. Failed observations are rejected
// without a model call; a verification call that fails accepts the
// observation at the threshold score.
func (e *ReactEngine) verify(ctx context.Context, query string, ta ThoughtAction, obs Observation, threshold float64) VerificationResult {
	if !obs.Success {
		return VerificationResult{
			Issues:        []string{obs.Error},
			ShouldRetry:   true,
			RetryStrategy: RetryDifferentSource,
		}
	}

	var payload verificationPayload
	err := e.gateway.GenerateJSON(ctx, gateway.Prompt{
		Phase:       phaseVerify,
		System:      verifySystemPrompt,
		User:        buildVerifyPrompt(query, ta, obs),
		Temperature: gateway.Temperature(0),
		Schema:      verifySchema,
	}, &payload)
	if err != nil {
		e.logger.Warn("verification unavailable, accepting observation: %v", err)
		return VerificationResult{
			IsValid:      true,
			QualityScore: threshold,
			Issues:       []string{fmt.Sprintf("verification unavailable: %v", err)},
		}
	}

	v := VerificationResult{
		QualityScore:  clamp01(payload.QualityScore),
		Issues:        payload.Issues,
		ShouldRetry:   payload.ShouldRetry,
		RetryStrategy: parseRetryStrategy(payload.RetryStrategy),
	}
	if payload.IsValid != nil {
		v.IsValid = *payload.IsValid
	} else {
		v.IsValid = v.QualityScore >= threshold
	}
	if failedVerification(v, threshold) {
		v.ShouldRetry = true
		if v.RetryStrategy == "" {
			v.RetryStrategy = RetryRefineQuery
		}
	}
	return v
}

func failedVerification(v VerificationResult, threshold float64) bool {
	return !v.IsValid || v.QualityScore < threshold
}

func parseRetryStrategy(raw string) RetryStrategy {
	switch s := RetryStrategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case RetryRefineQuery, RetryDifferentSource, RetryDecompose:
		return s
	}
	return ""
}

// correct proposes a replacement for the failed attempts, the most recent last.
func (e *ReactEngine) correct(ctx context.Context, query string, failed []Attempt, v VerificationResult) (ThoughtAction, error) {
	var ta ThoughtAction
	err := e.gateway.GenerateJSON(ctx, gateway.Prompt{
		Phase:  phaseCorrect,
		System: correctSystemPrompt,
		User:   buildCorrectPrompt(query, failed, v),
		Schema: thinkSchema,
	}, &ta)
	if err != nil {
		return ThoughtAction{}, err
	}
	return normalizeThought(ta)
}

func (e *ReactEngine) synthesize(ctx context.Context, query, notes string) (string, error) {
	return e.gateway.Generate(ctx, gateway.Prompt{
		Phase:  phaseSynthesize,
		System: synthesisSystemPrompt,
		User:   buildSynthesisPrompt(query, notes),
	})
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

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
