package strategy

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/logging"
	"reasoner/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	traceScopeStrategy = "reasoner.strategy"

	fallbackConfidence   = 0.5
	fastPathConfidence   = 0.95
	highRiskAnswerableAt = 0.9
)

// Decision sources reported to metrics.
const (
	sourceEmpty    = "empty"
	sourceFastPath = "fast_path"
	sourceModel    = "model"
	sourceFallback = "fallback"
)

var conversational = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "hello there": {}, "hi there": {}, "hey there": {},
	"good morning": {}, "good afternoon": {}, "good evening": {},
	"thanks": {}, "thank you": {}, "thanks a lot": {}, "thank you very much": {}, "thx": {},
	"bye": {}, "goodbye": {}, "see you": {}, "see you later": {},
	"how are you": {}, "how are you doing": {},
}

// Config wires the selector.
type Config struct {
	Gateway *gateway.Gateway
	Advisor ExperienceAdvisor
	Logger  logging.Logger
	Metrics *observability.Metrics
}

// Selector picks a Strategy per query with a single model call.
type Selector struct {
	gateway *gateway.Gateway
	advisor ExperienceAdvisor
	logger  logging.Logger
	metrics *observability.Metrics
}

// NewSelector builds a Selector.
func NewSelector(cfg Config) *Selector {
	return &Selector{
		gateway: cfg.Gateway,
		advisor: cfg.Advisor,
		logger:  logging.WithComponent(cfg.Logger, "strategy"),
		metrics: cfg.Metrics,
	}
}

type decisionPayload struct {
	Strategy             string  `json:"strategy"`
	Confidence           float64 `json:"confidence"`
	Reasoning            string  `json:"reasoning"`
	RequiresVerification bool    `json:"requires_verification"`
	EstimatedComplexity  string  `json:"estimated_complexity"`
	RequiresPlanning     bool    `json:"requires_planning"`
}

// Select returns a decision for q. It never fails: model errors and
// unusable output yield a conservative single-retrieval decision.
func (s *Selector) Select(ctx context.Context, q Query, self SelfDescription) Decision {
	ctx, span := observability.StartSpan(ctx, traceScopeStrategy, observability.SpanStrategySelect)
	defer span.End()

	decision, source := s.decide(ctx, q, self)
	if source != sourceEmpty {
		decision = applyHighRisk(decision, q.Text, self.HighRiskTopics)
	}

	span.SetAttributes(
		attribute.String(observability.AttrStrategy, string(decision.Strategy)),
		attribute.Float64(observability.AttrConfidence, decision.Confidence),
		attribute.String("reasoner.strategy.source", source),
	)
	s.metrics.IncStrategyDecision(string(decision.Strategy), source)
	logging.FromContext(ctx, s.logger).Info("strategy=%s confidence=%.2f verify=%t source=%s",
		decision.Strategy, decision.Confidence, decision.RequiresVerification, source)
	return decision
}

func (s *Selector) decide(ctx context.Context, q Query, self SelfDescription) (Decision, string) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Decision{
			Strategy:            Clarify,
			Reasoning:           "The query is empty.",
			EstimatedComplexity: Simple,
		}, sourceEmpty
	}
	if isConversational(text) {
		return Decision{
			Strategy:            DirectAnswer,
			Confidence:          fastPathConfidence,
			Reasoning:           "Conversational message; no lookup needed.",
			EstimatedComplexity: Simple,
		}, sourceFastPath
	}

	var hint *Recommendation
	if s.advisor != nil {
		if rec, ok := s.advisor.Recommend(text); ok {
			hint = &rec
		}
	}

	var payload decisionPayload
	err := s.gateway.GenerateJSON(ctx, gateway.Prompt{
		Phase:       "strategy",
		System:      buildSelectorSystem(self),
		User:        buildSelectorPrompt(q, hint),
		Temperature: gateway.Temperature(0),
		Schema:      decisionSchema,
	}, &payload)
	if err != nil {
		s.logger.Warn("strategy selection failed, using default: %v", err)
		return fallbackDecision(err.Error()), sourceFallback
	}
	strategy, ok := ParseStrategy(payload.Strategy)
	if !ok {
		s.logger.Warn("model proposed unknown strategy %q, using default", payload.Strategy)
		return fallbackDecision(fmt.Sprintf("unknown strategy %q", payload.Strategy)), sourceFallback
	}

	decision := Decision{
		Strategy:             strategy,
		Confidence:           clamp01(payload.Confidence),
		Reasoning:            strings.TrimSpace(payload.Reasoning),
		RequiresVerification: payload.RequiresVerification,
		EstimatedComplexity:  parseComplexity(payload.EstimatedComplexity),
		RequiresPlanning:     payload.RequiresPlanning && strategy == Iterative,
	}

	threshold := self.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultSelfDescription().ConfidenceThreshold
	}
	if decision.Strategy == DirectAnswer && decision.Confidence < threshold {
		decision.Strategy = SingleRetrieval
		decision.RequiresVerification = true
		decision.Reasoning = appendReason(decision.Reasoning,
			fmt.Sprintf("Confidence %.2f is below %.2f; retrieving before answering.", decision.Confidence, threshold))
	}
	return decision, sourceModel
}

func fallbackDecision(reason string) Decision {
	return Decision{
		Strategy:             SingleRetrieval,
		Confidence:           fallbackConfidence,
		Reasoning:            "Strategy selection failed (" + reason + "); defaulting to a single retrieval.",
		RequiresVerification: true,
		EstimatedComplexity:  Moderate,
	}
}

// applyHighRisk escalates queries touching a high-risk topic unless the
// decision is confident enough, in which case verification is forced.
func applyHighRisk(d Decision, text string, topics []string) Decision {
	label, hit := matchHighRisk(text, topics)
	if !hit {
		return d
	}
	if d.Confidence >= highRiskAnswerableAt {
		d.RequiresVerification = true
		d.Reasoning = appendReason(d.Reasoning, fmt.Sprintf("High-risk topic %q: verification required.", label))
		return d
	}
	d.Strategy = Escalate
	d.RequiresVerification = true
	d.RequiresPlanning = false
	d.Reasoning = appendReason(d.Reasoning, fmt.Sprintf("High-risk topic %q: escalating for review.", label))
	return d
}

func isConversational(text string) bool {
	normalized := strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}), " ")
	_, ok := conversational[normalized]
	return ok
}

func appendReason(reasoning, extra string) string {
	if reasoning == "" {
		return extra
	}
	return reasoning + " " + extra
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
