package react

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/logging"
	"reasoner/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	recentFailuresInPrompt = 3
	// Runs that needed this many corrections are not reported as verified.
	correctionsForUnverified = 3
	correctedPrefix          = "[Corrected] "
	cancelledAnswer          = "Reasoning was interrupted before an answer was reached."
)

// Run drives one query through the loop. It never returns an error: model
// and tool failures are folded into degraded steps.
func (e *ReactEngine) Run(ctx context.Context, req Request) *Result {
	rt := newReactRuntime(e, ctx, req)
	ctx, span := observability.StartSpan(ctx, traceScopeReact, observability.SpanReactRun,
		attribute.Int("reasoner.react.max_iterations", rt.maxIterations),
		attribute.Bool("reasoner.react.verify", rt.verify),
	)
	defer span.End()

	result := rt.run(ctx)
	annotateResult(span, result)
	e.metrics.ObserveReactRun(string(result.StopReason), result.Thoughts, result.Corrections)
	rt.logger.Info("reasoning finished: stop=%s thoughts=%d steps=%d corrections=%d",
		result.StopReason, result.Thoughts, len(result.Steps), result.Corrections)
	return result
}

// reactRuntime holds the mutable state of a single run.
type reactRuntime struct {
	engine *ReactEngine
	logger logging.Logger
	runID  string

	query         string
	maxIterations int
	threshold     float64
	verify        bool
	budget        int

	notes       strings.Builder
	steps       []Step
	sources     []ports.Source
	failed      []Attempt
	thinks      int
	corrections int
}

func newReactRuntime(e *ReactEngine, ctx context.Context, req Request) *reactRuntime {
	rt := &reactRuntime{
		engine:        e,
		logger:        logging.FromContext(ctx, e.logger),
		runID:         observability.RunIDFromContext(ctx),
		query:         strings.TrimSpace(req.Query),
		maxIterations: e.maxIterations,
		threshold:     e.verificationThreshold,
		verify:        !req.SkipVerification,
	}
	if req.MaxIterations > 0 {
		rt.maxIterations = req.MaxIterations
	}
	if req.VerificationThreshold > 0 {
		rt.threshold = req.VerificationThreshold
	}
	rt.budget = e.maxRetriesPerStep * rt.maxIterations
	if initial := strings.TrimSpace(req.InitialContext); initial != "" {
		rt.notes.WriteString(initial)
		rt.notes.WriteString("\n")
	}
	return rt
}

func (rt *reactRuntime) run(ctx context.Context) *Result {
	for rt.thinks < rt.maxIterations {
		if err := ctx.Err(); err != nil {
			rt.logger.Warn("reasoning cancelled after %d step(s): %v", len(rt.steps), err)
			return rt.result(StopCancelled, rt.bestAnswer(cancelledAnswer), 0, false)
		}
		if result := rt.iterate(ctx); result != nil {
			return result
		}
	}
	return rt.exhausted(ctx)
}

// iterate performs one THINK and acts on it. It returns a result when the
// step ended the run.
func (rt *reactRuntime) iterate(ctx context.Context) *Result {
	e := rt.engine
	number := len(rt.steps) + 1
	ctx, span := observability.StartSpan(ctx, traceScopeReact, observability.SpanReactIteration,
		attribute.Int(observability.AttrIteration, number))
	defer span.End()

	rt.thinks++
	lastThought := rt.thinks == rt.maxIterations
	ta, degraded := e.think(ctx, buildThinkPrompt(rt.query, rt.notes.String(), rt.steps, lastThought))

	// High confidence on a tool action: spend one more THINK asking for the
	// answer outright, if the budget allows it.
	if !degraded && !ta.Action.Terminal() && ta.Confidence >= e.earlyExitConfidence && rt.thinks < rt.maxIterations {
		rt.thinks++
		detour, detourDegraded := e.think(ctx, buildDetourPrompt(rt.query, rt.notes.String(), ta))
		if !detourDegraded && detour.Action.Terminal() {
			ta = detour
		} else {
			rt.logger.Debug("early exit declined at step %d, continuing with %s", number, ta.Action)
		}
	}
	annotateThought(span, ta)

	switch {
	case ta.Action.Terminal():
		step := rt.newStep(number, ta)
		step.Degraded = degraded
		rt.append(ctx, step)
		return rt.finish(step)
	case ta.Action == ActionRefineQuery:
		rt.append(ctx, rt.refine(number, ta))
		return nil
	}

	step := rt.actAndVerify(ctx, number, ta)
	rt.append(ctx, step)
	if step.Action.Terminal() {
		return rt.finish(step)
	}
	return nil
}

func (rt *reactRuntime) refine(number int, ta ThoughtAction) Step {
	step := rt.newStep(number, ta)
	if ta.ActionInput == "" {
		step.Observation = &Observation{Content: "Refinement proposed no new query.", Error: "empty query"}
		return step
	}
	rt.logger.Debug("working query refined: %q -> %q", rt.query, ta.ActionInput)
	rt.query = ta.ActionInput
	step.Observation = &Observation{Content: "Working query refined to: " + ta.ActionInput, Success: true}
	return step
}

func (rt *reactRuntime) actAndVerify(ctx context.Context, number int, ta ThoughtAction) Step {
	e := rt.engine
	obs := e.act(ctx, ta)
	step := rt.newStep(number, ta)
	step.Observation = &obs
	if !rt.verify {
		return step
	}

	v := e.verify(ctx, rt.query, ta, obs, rt.threshold)
	step.Verification = &v
	if !failedVerification(v, rt.threshold) {
		return step
	}

	attempt := Attempt{Action: ta.Action, ActionInput: ta.ActionInput, Observation: rt.clip(observationText(obs))}
	rt.failed = append(rt.failed, attempt)
	if rt.corrections >= rt.budget {
		rt.logger.Debug("self-correction budget of %d spent, accepting step %d", rt.budget, number)
		return step
	}
	rt.corrections++

	corrected, err := e.correct(ctx, rt.query, rt.recentFailures(), v)
	if err != nil {
		rt.logger.Warn("self-correction failed at step %d, keeping original: %v", number, err)
		return step
	}
	if rt.repeatsFailure(corrected) {
		rt.logger.Debug("self-correction repeated a failed attempt at step %d", number)
		return step
	}
	return rt.applyCorrection(ctx, step, attempt, corrected)
}

// applyCorrection builds the replacement step. The failing verification and
// the original attempt stay on it for audit.
func (rt *reactRuntime) applyCorrection(ctx context.Context, original Step, attempt Attempt, corrected ThoughtAction) Step {
	fixed := Step{
		Number:       original.Number,
		Thought:      corrected.Thought,
		Action:       corrected.Action,
		ActionInput:  corrected.ActionInput,
		Confidence:   corrected.Confidence,
		Verification: original.Verification,
		Original:     &attempt,
		Timestamp:    time.Now(),
	}
	switch {
	case corrected.Action.Terminal():
		return fixed
	case corrected.Action == ActionRefineQuery:
		if corrected.ActionInput != "" {
			rt.query = corrected.ActionInput
		}
		fixed.Action = original.Action
		fixed.ActionInput = rt.query
	}

	obs := rt.engine.act(ctx, ThoughtAction{Action: fixed.Action, ActionInput: fixed.ActionInput})
	obs.Content = correctedPrefix + obs.Content
	fixed.Observation = &obs
	return fixed
}

func (rt *reactRuntime) recentFailures() []Attempt {
	if len(rt.failed) <= recentFailuresInPrompt {
		return rt.failed
	}
	return rt.failed[len(rt.failed)-recentFailuresInPrompt:]
}

func (rt *reactRuntime) repeatsFailure(ta ThoughtAction) bool {
	if ta.Action.Terminal() {
		return false
	}
	input := normalizeInput(ta.ActionInput)
	for _, a := range rt.failed {
		if ta.Action == ActionRefineQuery {
			if normalizeInput(a.ActionInput) == input {
				return true
			}
			continue
		}
		if a.Action == ta.Action && normalizeInput(a.ActionInput) == input {
			return true
		}
	}
	return false
}

func (rt *reactRuntime) newStep(number int, ta ThoughtAction) Step {
	return Step{
		Number:      number,
		Thought:     ta.Thought,
		Action:      ta.Action,
		ActionInput: ta.ActionInput,
		Confidence:  ta.Confidence,
		Timestamp:   time.Now(),
	}
}

func (rt *reactRuntime) append(ctx context.Context, step Step) {
	rt.steps = append(rt.steps, step)
	if obs := step.Observation; obs != nil && step.Action != ActionRefineQuery {
		fmt.Fprintf(&rt.notes, "[Step %d] %s(%s): %s\n", step.Number, step.Action, step.ActionInput, rt.clip(observationText(*obs)))
		if obs.Success {
			rt.sources = ports.MergeSources(rt.sources, obs.Sources...)
		}
	}
	rt.engine.sink.Emit(ports.NewEvent(ports.EventThinkingStep, rt.runID, map[string]any{
		"step":         step.Number,
		"thought":      step.Thought,
		"action":       string(step.Action),
		"action_input": step.ActionInput,
		"confidence":   step.Confidence,
		"corrected":    step.Corrected(),
	}))
}

func (rt *reactRuntime) finish(step Step) *Result {
	reason := StopFinalAnswer
	if step.Action == ActionClarify {
		reason = StopClarify
	}
	answer := step.ActionInput
	if strings.TrimSpace(answer) == "" {
		answer = rt.bestAnswer(apologyAnswer)
	}
	return rt.result(reason, answer, step.Confidence, !step.Degraded)
}

// exhausted synthesizes a final answer from everything gathered once the
// THINK budget is spent.
func (rt *reactRuntime) exhausted(ctx context.Context) *Result {
	confidence := 0.5
	answer, err := rt.engine.synthesize(ctx, rt.query, rt.notes.String())
	degraded := err != nil
	if degraded {
		rt.logger.Warn("final synthesis failed: %v", err)
		answer = rt.bestAnswer(apologyAnswer)
		confidence = fallbackConfidence
	}

	step := rt.newStep(len(rt.steps)+1, ThoughtAction{
		Thought:     fmt.Sprintf("Iteration budget of %d exhausted; answering from the gathered context.", rt.maxIterations),
		Action:      ActionFinalAnswer,
		ActionInput: answer,
		Confidence:  confidence,
	})
	step.Degraded = degraded
	rt.append(ctx, step)
	return rt.result(StopMaxIterations, answer, confidence, !degraded)
}

func (rt *reactRuntime) result(reason StopReason, answer string, confidence float64, success bool) *Result {
	return &Result{
		FinalAnswer:        answer,
		Steps:              rt.steps,
		Sources:            rt.sources,
		Success:            success && reason != StopCancelled,
		VerificationPassed: reason != StopCancelled && rt.corrections < correctionsForUnverified,
		Confidence:         confidence,
		Thoughts:           rt.thinks,
		Corrections:        rt.corrections,
		StopReason:         reason,
	}
}

// bestAnswer returns the latest successful observation, or fallback.
func (rt *reactRuntime) bestAnswer(fallback string) string {
	for i := len(rt.steps) - 1; i >= 0; i-- {
		if obs := rt.steps[i].Observation; obs != nil && obs.Success && rt.steps[i].Action != ActionRefineQuery {
			content := strings.TrimSpace(strings.TrimPrefix(obs.Content, correctedPrefix))
			if content != "" {
				return content
			}
		}
	}
	return fallback
}

func (rt *reactRuntime) clip(s string) string {
	return truncateRunes(s, rt.engine.observationLimit)
}

func observationText(obs Observation) string {
	if obs.Success || obs.Error == "" {
		return obs.Content
	}
	return obs.Content + " (" + obs.Error + ")"
}

func normalizeInput(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
