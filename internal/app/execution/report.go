package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/task"
	"reasoner/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const maxResultCharsInSynthesis = 1500

// Stats summarizes a finished run.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Blocked   int `json:"blocked"`
	Retries   int `json:"retries"`
}

// Report is the outcome of Run.
type Report struct {
	Goal      string          `json:"goal"`
	Success   bool            `json:"success"`
	Cancelled bool            `json:"cancelled,omitempty"`
	Summary   string          `json:"summary"`
	Stats     Stats           `json:"stats"`
	Tasks     []task.Task     `json:"tasks"`
	Log       []task.LogEntry `json:"log,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Run executes q and synthesizes a final summary with one LLM call. Plan
// problems and the safety ceiling return an error and no report. A
// cancelled run returns its partial report together with the error.
func (e *Engine) Run(ctx context.Context, q *task.Queue) (*Report, error) {
	started := time.Now()
	ctx, span := observability.StartSpan(ctx, traceScopeEngine, observability.SpanEngineRun,
		attribute.Int("reasoner.tasks", q.Len()))
	defer span.End()

	allDone, err := e.Execute(ctx, q)
	if err != nil && !errors.Is(err, ErrCancelled) {
		observability.MarkSpanResult(span, err)
		return nil, err
	}

	report := e.buildReport(q, allDone)
	report.Cancelled = err != nil
	if report.Cancelled {
		report.Summary = fallbackSummary(report, "The run was interrupted before all tasks finished.")
	} else {
		report.Summary = e.synthesize(ctx, report)
	}
	report.Duration = time.Since(started)

	span.SetAttributes(
		attribute.Int("reasoner.tasks.completed", report.Stats.Completed),
		attribute.Int("reasoner.tasks.failed", report.Stats.Failed),
	)
	observability.MarkSpanResult(span, err)
	return report, err
}

func (e *Engine) buildReport(q *task.Queue, allDone bool) *Report {
	p := q.Progress()
	return &Report{
		Goal:    q.Goal(),
		Success: allDone,
		Stats: Stats{
			Total:     p.Total,
			Completed: p.Completed,
			Failed:    p.Failed,
			Blocked:   len(q.Blocked()),
			Retries:   p.Retries,
		},
		Tasks: q.Snapshot(),
		Log:   q.Log(),
	}
}

func (e *Engine) synthesize(ctx context.Context, report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", report.Goal)
	b.WriteString("Task results:\n")
	for _, t := range report.Tasks {
		fmt.Fprintf(&b, "\n## %s (%s, %s)\n", t.Title, t.ID, t.Status)
		switch {
		case t.Status == task.StatusCompleted:
			b.WriteString(clip(t.Result, maxResultCharsInSynthesis))
		case t.Error != "":
			fmt.Fprintf(&b, "error: %s", t.Error)
		default:
			b.WriteString("not executed")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nExecution statistics: total=%d completed=%d failed=%d blocked=%d retries=%d\n",
		report.Stats.Total, report.Stats.Completed, report.Stats.Failed, report.Stats.Blocked, report.Stats.Retries)
	b.WriteString("\nWrite the final answer to the goal using these results. ")
	b.WriteString("If some tasks failed, say what is missing.")

	summary, err := e.gateway.Generate(ctx, gateway.Prompt{
		Phase:  "synthesis",
		System: "You combine the results of completed sub-tasks into one clear final answer.",
		User:   b.String(),
	})
	if err != nil {
		e.logger.Warn("final synthesis failed, using fallback summary: %v", err)
		return fallbackSummary(report, "A combined summary could not be generated.")
	}
	return summary
}

func fallbackSummary(report *Report, headline string) string {
	var b strings.Builder
	b.WriteString(headline)
	fmt.Fprintf(&b, " %d of %d tasks completed", report.Stats.Completed, report.Stats.Total)
	if report.Stats.Failed > 0 {
		fmt.Fprintf(&b, ", %d failed", report.Stats.Failed)
	}
	if report.Stats.Blocked > 0 {
		fmt.Fprintf(&b, ", %d blocked", report.Stats.Blocked)
	}
	b.WriteString(".\n")
	for _, t := range report.Tasks {
		switch t.Status {
		case task.StatusCompleted:
			fmt.Fprintf(&b, "\n- %s: %s", t.Title, clip(t.Result, 300))
		case task.StatusFailed:
			fmt.Fprintf(&b, "\n- %s: failed (%s)", t.Title, t.Error)
		default:
			fmt.Fprintf(&b, "\n- %s: not executed", t.Title)
		}
	}
	return b.String()
}

// MetricsHook reports queue transitions to m.
func MetricsHook(m *observability.Metrics) task.TransitionHook {
	return func(entry task.LogEntry) {
		m.IncTaskTransition(string(entry.To))
	}
}

func clip(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}
