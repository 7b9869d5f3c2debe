package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "reasoner"

// Metrics exposes Prometheus collectors that report engine activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	strategyDecisions *prometheus.CounterVec
	reactRuns         *prometheus.CounterVec
	reactIterations   prometheus.Histogram
	selfCorrections   prometheus.Counter
	toolInvocations   *prometheus.CounterVec
	taskTransitions   *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	tasksActive       prometheus.Gauge
	evaluationScore   prometheus.Histogram
	eventsDropped     prometheus.Counter
	queriesHandled    *prometheus.CounterVec
	strategyRetries   *prometheus.CounterVec
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors already registered under the same name are reused so multiple
// engines can share one registry.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		strategyDecisions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "strategy",
			Name:      "decisions_total",
			Help:      "Strategy decisions by chosen strategy and decision source.",
		}, []string{"strategy", "source"})),
		reactRuns: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "react",
			Name:      "runs_total",
			Help:      "Reasoning loop runs by stop reason.",
		}, []string{"stop_reason"})),
		reactIterations: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "react",
			Name:      "iterations",
			Help:      "THINK phases consumed per reasoning loop run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		})),
		selfCorrections: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "react",
			Name:      "self_corrections_total",
			Help:      "Self-correction attempts triggered by failed verification.",
		})),
		toolInvocations: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tools",
			Name:      "invocations_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"})),
		taskTransitions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "task_transitions_total",
			Help:      "Task status transitions by target status.",
		}, []string{"status"})),
		taskDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual task attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent", "outcome"})),
		tasksActive: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "tasks_active",
			Help:      "Tasks currently dispatched to workers.",
		})),
		evaluationScore: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "reflection",
			Name:      "evaluation_score",
			Help:      "Overall self-evaluation score of produced answers.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		})),
		eventsDropped: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		})),
		queriesHandled: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "coordinator",
			Name:      "queries_total",
			Help:      "Queries answered by final strategy and outcome.",
		}, []string{"strategy", "outcome"})),
		strategyRetries: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "coordinator",
			Name:      "strategy_retries_total",
			Help:      "Answers retried with a stronger strategy after a weak evaluation.",
		}, []string{"from", "to"})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// IncStrategyDecision counts one strategy decision.
func (m *Metrics) IncStrategyDecision(strategy, source string) {
	if m == nil {
		return
	}
	m.strategyDecisions.WithLabelValues(strategy, source).Inc()
}

// ObserveReactRun records the outcome of one reasoning loop run.
func (m *Metrics) ObserveReactRun(stopReason string, iterations, corrections int) {
	if m == nil {
		return
	}
	m.reactRuns.WithLabelValues(stopReason).Inc()
	m.reactIterations.Observe(float64(iterations))
	if corrections > 0 {
		m.selfCorrections.Add(float64(corrections))
	}
}

// IncToolInvocation counts a tool call with its outcome (ok, error, not_found, cache_hit, degraded).
func (m *Metrics) IncToolInvocation(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolInvocations.WithLabelValues(tool, outcome).Inc()
}

// IncTaskTransition counts a task entering status.
func (m *Metrics) IncTaskTransition(status string) {
	if m == nil {
		return
	}
	m.taskTransitions.WithLabelValues(status).Inc()
}

// ObserveTaskDuration records one task attempt.
func (m *Metrics) ObserveTaskDuration(agent, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(agent, outcome).Observe(duration.Seconds())
}

// TaskStarted increments the active task gauge.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksActive.Inc()
}

// TaskFinished decrements the active task gauge.
func (m *Metrics) TaskFinished() {
	if m == nil {
		return
	}
	m.tasksActive.Dec()
}

// ObserveEvaluation records an overall evaluation score.
func (m *Metrics) ObserveEvaluation(score float64) {
	if m == nil {
		return
	}
	m.evaluationScore.Observe(score)
}

// IncEventDropped counts an event the hub could not deliver.
func (m *Metrics) IncEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// IncQuery counts one handled query. outcome is "ok" or "error".
func (m *Metrics) IncQuery(strategy, outcome string) {
	if m == nil {
		return
	}
	m.queriesHandled.WithLabelValues(strategy, outcome).Inc()
}

// IncStrategyRetry counts a retry from one strategy to a stronger one.
func (m *Metrics) IncStrategyRetry(from, to string) {
	if m == nil {
		return
	}
	m.strategyRetries.WithLabelValues(from, to).Inc()
}

// ServeMetrics exposes gatherer on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
