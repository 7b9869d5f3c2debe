package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordEngineActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.IncStrategyDecision("iterative", "model")
	m.IncStrategyDecision("iterative", "model")
	m.ObserveReactRun("final_answer", 3, 2)
	m.IncTaskTransition("completed")
	m.ObserveTaskDuration("llm", "ok", 40*time.Millisecond)
	m.TaskStarted()

	require.Equal(t, 2.0, testutil.ToFloat64(m.strategyDecisions.WithLabelValues("iterative", "model")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reactRuns.WithLabelValues("final_answer")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.selfCorrections))
	require.Equal(t, 1.0, testutil.ToFloat64(m.taskTransitions.WithLabelValues("completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tasksActive))
}

func TestMustNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.IncEventDropped()
	second.IncEventDropped()

	require.Equal(t, 2.0, testutil.ToFloat64(first.eventsDropped))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncStrategyDecision("direct_answer", "fast_path")
	m.ObserveReactRun("cancelled", 1, 0)
	m.TaskStarted()
	m.TaskFinished()
	m.ObserveEvaluation(0.5)
}
