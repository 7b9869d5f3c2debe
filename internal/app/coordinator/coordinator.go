// Package coordinator routes one user query through strategy selection to
// the matching answering path, grades the answer and records the outcome.
package coordinator

import (
	"context"
	"errors"
	"strings"
	"time"

	"reasoner/internal/app/execution"
	"reasoner/internal/app/planner"
	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/agent/react"
	"reasoner/internal/domain/agent/reflection"
	"reasoner/internal/domain/agent/strategy"
	"reasoner/internal/domain/task"
	"reasoner/internal/logging"
	"reasoner/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	traceScopeCoordinator = "reasoner.coordinator"

	defaultRetrievalTimeout = 10 * time.Second
	defaultRetrievalTopK    = 5
	defaultTaskRetries      = 2
)

// EscalationMessage is returned verbatim for escalated queries.
const EscalationMessage = "This request touches a sensitive area and has been flagged for human review. " +
	"Please consult a qualified professional; an operator will follow up if one is available."

// Query is one user request.
type Query struct {
	Text        string
	History     []strategy.Turn
	UserContext string
	// Strategy forces a route and skips selection when set.
	Strategy strategy.Strategy
}

// Response is the outcome of Handle.
type Response struct {
	RunID    string            `json:"run_id"`
	Answer   string            `json:"answer"`
	Decision strategy.Decision `json:"decision"`
	// Strategy is the route that produced Answer; it differs from
	// Decision.Strategy after a stronger retry.
	Strategy   strategy.Strategy            `json:"strategy"`
	Planned    bool                         `json:"planned,omitempty"`
	Sources    []ports.Source               `json:"sources,omitempty"`
	Evaluation *reflection.EvaluationResult `json:"evaluation,omitempty"`
	Steps      []react.Step                 `json:"steps,omitempty"`
	Report     *execution.Report            `json:"report,omitempty"`
	Retried    bool                         `json:"retried,omitempty"`
	Duration   time.Duration                `json:"duration"`
}

// Dependencies are the collaborators of a Coordinator. Only Gateway is
// required; a missing collaborator disables the routes that need it.
type Dependencies struct {
	Gateway   *gateway.Gateway
	Selector  *strategy.Selector
	Self      strategy.SelfDescription
	Retriever ports.Retriever
	React     *react.ReactEngine
	Planner   planner.Planner
	Engine    *execution.Engine
	Workers   *execution.Registry
	Evaluator *reflection.Evaluator
	Learner   *reflection.Learner
}

// Coordinator answers queries.
type Coordinator struct {
	deps Dependencies

	retrievalTimeout time.Duration
	retrievalTopK    int
	taskRetries      int
	evaluate         bool

	logger  logging.Logger
	metrics *observability.Metrics
	sink    ports.EventSink
	now     func() time.Time
}

// New builds a coordinator.
func New(deps Dependencies, opts ...Option) *Coordinator {
	c := &Coordinator{
		deps:             deps,
		retrievalTimeout: defaultRetrievalTimeout,
		retrievalTopK:    defaultRetrievalTopK,
		taskRetries:      defaultTaskRetries,
		evaluate:         true,
		logger:           logging.Nop(),
		sink:             ports.NopSink(),
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// outcome is what one route produced.
type outcome struct {
	answer  string
	context string
	sources []ports.Source
	steps   []react.Step
	report  *execution.Report
	planned bool
	// failed marks an apology produced because generation failed.
	failed bool
}

// Handle answers q. Routing problems degrade to a weaker answer; only an
// invalid plan and the scheduler safety ceiling are returned as errors.
func (c *Coordinator) Handle(ctx context.Context, q Query) (*Response, error) {
	started := c.now()
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.FromContext(ctx, c.logger)

	ctx, span := observability.StartSpan(ctx, traceScopeCoordinator, observability.SpanCoordinatorTurn,
		attribute.String(observability.AttrRunID, runID))
	defer span.End()

	decision := c.decide(ctx, q)
	c.sink.Emit(ports.NewEvent(ports.EventStrategyDecision, runID, map[string]any{
		"strategy":              string(decision.Strategy),
		"confidence":            decision.Confidence,
		"reasoning":             decision.Reasoning,
		"requires_verification": decision.RequiresVerification,
		"requires_planning":     decision.RequiresPlanning,
		"complexity":            string(decision.EstimatedComplexity),
	}))

	used := decision.Strategy
	out, err := c.route(ctx, q, decision, used)
	if err != nil {
		observability.MarkSpanResult(span, err)
		c.metrics.IncQuery(string(used), "error")
		logger.Warn("query failed on %s route: %v", used, err)
		return nil, err
	}

	resp := &Response{RunID: runID, Decision: decision}
	var eval *reflection.EvaluationResult
	if c.gradable(used, decision) {
		result := c.grade(ctx, q, out)
		eval = &result

		if result.ShouldRetry && !out.planned {
			if stronger := used.Stronger(); stronger != used {
				logger.Info("answer scored %.2f on %s, retrying with %s", result.Score, used, stronger)
				retryOut, retryErr := c.route(ctx, q, strategy.Decision{
					Strategy:             stronger,
					Confidence:           decision.Confidence,
					RequiresVerification: true,
					EstimatedComplexity:  decision.EstimatedComplexity,
				}, stronger)
				if retryErr == nil {
					resp.Retried = true
					c.metrics.IncStrategyRetry(string(used), string(stronger))
					retryEval := c.grade(ctx, q, retryOut)
					if preferRetry(out, result, retryOut, retryEval) {
						out, used, eval = retryOut, stronger, &retryEval
					}
				} else {
					logger.Warn("stronger retry with %s failed: %v", stronger, retryErr)
				}
			}
		}
		c.record(q.Text, used, *eval)
	}

	if strings.TrimSpace(out.answer) == "" {
		out.answer = ApologyAnswer
	}
	resp.Answer = out.answer
	resp.Strategy = used
	resp.Planned = out.planned
	resp.Sources = out.sources
	resp.Steps = out.steps
	resp.Report = out.report
	resp.Evaluation = eval
	resp.Duration = c.now().Sub(started)

	payload := map[string]any{
		"answer":   resp.Answer,
		"strategy": string(used),
		"retried":  resp.Retried,
		"sources":  len(resp.Sources),
	}
	if eval != nil {
		payload["score"] = eval.Score
		payload["confidence_level"] = string(eval.ConfidenceLevel)
	}
	c.sink.Emit(ports.NewEvent(ports.EventFinalAnswer, runID, payload))
	c.metrics.IncQuery(string(used), "ok")

	span.SetAttributes(
		attribute.String(observability.AttrStrategy, string(used)),
		attribute.Bool("reasoner.coordinator.retried", resp.Retried),
		attribute.Bool("reasoner.coordinator.planned", resp.Planned),
	)
	logger.Info("answered via %s in %s (retried=%t)", used, resp.Duration, resp.Retried)
	return resp, nil
}

func (c *Coordinator) decide(ctx context.Context, q Query) strategy.Decision {
	if q.Strategy != "" {
		return strategy.Decision{
			Strategy:            q.Strategy,
			Confidence:          1,
			Reasoning:           "Strategy requested by the caller.",
			EstimatedComplexity: strategy.Moderate,
		}
	}
	if c.deps.Selector == nil {
		return strategy.Decision{
			Strategy:             strategy.SingleRetrieval,
			Confidence:           0.5,
			Reasoning:            "No strategy selector configured.",
			RequiresVerification: true,
			EstimatedComplexity:  strategy.Moderate,
		}
	}
	self := c.deps.Self
	if len(self.Tools) == 0 && c.deps.Workers != nil {
		self.Tools = c.deps.Workers.Names()
	}
	return c.deps.Selector.Select(ctx, strategy.Query{
		Text:        q.Text,
		History:     q.History,
		UserContext: q.UserContext,
	}, self)
}

func (c *Coordinator) route(ctx context.Context, q Query, d strategy.Decision, s strategy.Strategy) (outcome, error) {
	switch s {
	case strategy.Escalate:
		return outcome{answer: EscalationMessage}, nil
	case strategy.Clarify:
		return c.clarify(ctx, q), nil
	case strategy.DirectAnswer:
		return c.directAnswer(ctx, q), nil
	case strategy.SingleRetrieval:
		return c.singleRetrieval(ctx, q), nil
	}

	if d.RequiresPlanning && c.canPlan() {
		out, err := c.planned(ctx, q)
		if err == nil || isFatal(err) {
			return out, err
		}
		logging.FromContext(ctx, c.logger).Warn("planning failed, falling back to iterative reasoning: %v", err)
	}
	return c.iterative(ctx, q), nil
}

// gradable reports whether the answer from s is evaluated. Decisions that
// require verification are evaluated even when evaluation is switched off.
func (c *Coordinator) gradable(s strategy.Strategy, d strategy.Decision) bool {
	if c.deps.Evaluator == nil || (!c.evaluate && !d.RequiresVerification) {
		return false
	}
	return s != strategy.Escalate && s != strategy.Clarify
}

func (c *Coordinator) grade(ctx context.Context, q Query, out outcome) reflection.EvaluationResult {
	if out.failed {
		return reflection.EvaluationResult{
			ConfidenceLevel: reflection.ConfidenceVeryLow,
			Issues:          []string{"no answer could be generated"},
			ShouldRetry:     true,
			RetryStrategy:   reflection.RetryGeneral,
		}
	}
	return c.deps.Evaluator.Evaluate(ctx, reflection.EvaluationInput{
		Query:    q.Text,
		Response: out.answer,
		Context:  out.context,
		Sources:  out.sources,
	})
}

func (c *Coordinator) record(query string, used strategy.Strategy, eval reflection.EvaluationResult) {
	if c.deps.Learner == nil {
		return
	}
	c.deps.Learner.Record(query, used, !eval.ShouldRetry, eval.Score, eval.Issues)
}

// preferRetry reports whether the stronger retry replaces the first answer:
// a real answer beats an apology, otherwise the higher score wins.
func preferRetry(first outcome, firstEval reflection.EvaluationResult, retry outcome, retryEval reflection.EvaluationResult) bool {
	if first.failed != retry.failed {
		return first.failed
	}
	if retry.failed {
		return false
	}
	return retryEval.Score >= firstEval.Score || strings.TrimSpace(first.answer) == ""
}

// isFatal reports errors that must reach the caller instead of degrading
// to another route.
func isFatal(err error) bool {
	var verrs *task.ValidationErrors
	return errors.Is(err, execution.ErrSafetyCeiling) || errors.As(err, &verrs)
}
