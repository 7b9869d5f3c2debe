package react

import (
	"reasoner/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const traceScopeReact = "reasoner.react"

func annotateThought(span trace.Span, ta ThoughtAction) {
	span.SetAttributes(
		attribute.String(observability.AttrAction, string(ta.Action)),
		attribute.Float64(observability.AttrConfidence, ta.Confidence),
	)
}

func annotateResult(span trace.Span, result *Result) {
	span.SetAttributes(
		attribute.String(observability.AttrStatus, string(result.StopReason)),
		attribute.Int("reasoner.react.thoughts", result.Thoughts),
		attribute.Int("reasoner.react.corrections", result.Corrections),
		attribute.Bool("reasoner.react.verification_passed", result.VerificationPassed),
	)
}
