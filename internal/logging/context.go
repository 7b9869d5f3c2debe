package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"reasoner/internal/observability"
)

// ContextWithRunID tags ctx with the id of the query being answered.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return observability.ContextWithRunID(ctx, runID)
}

// FromContext returns logger tagged with the run id on ctx and, when a span
// is recording, its trace id.
func FromContext(ctx context.Context, logger Logger) Logger {
	logger = OrNop(logger)
	if ctx == nil {
		return logger
	}
	if runID := observability.RunIDFromContext(ctx); runID != "" {
		logger = with(logger, "run_id", runID, "run_id="+runID)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		id := sc.TraceID().String()
		logger = with(logger, "trace_id", id, "trace_id="+id)
	}
	return logger
}
