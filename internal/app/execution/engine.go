// Package execution drives a task.Queue to completion: it dispatches ready
// tasks to registered workers with bounded concurrency, applies the retry
// policy and synthesizes a final report.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reasoner/internal/async"
	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/task"
	"reasoner/internal/logging"
	"reasoner/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultMaxParallelTasks       = 3
	defaultMaxSchedulerIterations = 100

	traceScopeEngine = "reasoner.engine"
)

var (
	// ErrSafetyCeiling means the scheduler made more passes than allowed. It
	// signals a scheduling bug, never a normal exit.
	ErrSafetyCeiling = errors.New("scheduler safety ceiling exceeded")
	// ErrCancelled wraps the context error when a run is interrupted.
	ErrCancelled = errors.New("execution cancelled")
)

// Config tunes the engine.
type Config struct {
	MaxParallelTasks       int
	MaxSchedulerIterations int
	TaskTimeout            time.Duration
	Logger                 logging.Logger
	Metrics                *observability.Metrics
	Sink                   ports.EventSink
}

// Engine executes task queues.
type Engine struct {
	workers     *Registry
	gateway     *gateway.Gateway
	maxParallel int
	maxPasses   int
	taskTimeout time.Duration
	logger      logging.Logger
	metrics     *observability.Metrics
	sink        ports.EventSink
}

// NewEngine creates an engine dispatching to workers and synthesizing through gw.
func NewEngine(workers *Registry, gw *gateway.Gateway, cfg Config) *Engine {
	if cfg.MaxParallelTasks <= 0 {
		cfg.MaxParallelTasks = defaultMaxParallelTasks
	}
	if cfg.MaxSchedulerIterations <= 0 {
		cfg.MaxSchedulerIterations = defaultMaxSchedulerIterations
	}
	if workers == nil {
		workers = NewRegistry()
	}
	return &Engine{
		workers:     workers,
		gateway:     gw,
		maxParallel: cfg.MaxParallelTasks,
		maxPasses:   cfg.MaxSchedulerIterations,
		taskTimeout: cfg.TaskTimeout,
		logger:      logging.WithComponent(cfg.Logger, "engine"),
		metrics:     cfg.Metrics,
		sink:        ports.SinkOrNop(cfg.Sink),
	}
}

// Workers exposes the registry, mainly so planners can list capabilities.
func (e *Engine) Workers() *Registry {
	return e.workers
}

// Execute runs q until every task is terminal or nothing is actionable. It
// reports whether every task completed. Only an unknown assigned agent, the
// safety ceiling and cancellation produce an error; task failures are data.
func (e *Engine) Execute(ctx context.Context, q *task.Queue) (bool, error) {
	if err := e.checkAgents(q); err != nil {
		return false, err
	}
	logger := logging.FromContext(ctx, e.logger)

	// A cancelled run stops dispatching but lets in-flight calls finish.
	workCtx := context.WithoutCancel(ctx)
	done := make(chan string, e.maxParallel)
	inFlight := 0
	defer func() {
		for inFlight > 0 {
			<-done
			inFlight--
		}
	}()

	passes := 0
	for !q.IsTerminal() {
		if err := ctx.Err(); err != nil {
			logger.Warn("run interrupted with %d task(s) in flight", inFlight)
			return false, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		passes++
		if passes > e.maxPasses {
			p := q.Progress()
			logger.Error("safety ceiling of %d passes exceeded: %+v", e.maxPasses, p)
			return false, fmt.Errorf("%w: %d passes, %d/%d tasks done", ErrSafetyCeiling, e.maxPasses, p.Done(), p.Total)
		}

		if slots := e.maxParallel - inFlight; slots > 0 {
			if ready := q.ReadyTasks(); len(ready) > 0 {
				if len(ready) > slots {
					ready = ready[:slots]
				}
				for _, t := range ready {
					started, err := q.MarkStarted(t.ID)
					if err != nil {
						logger.Warn("skip dispatch of %s: %v", t.ID, err)
						continue
					}
					inFlight++
					e.dispatch(workCtx, q, started, done)
				}
				continue
			}
		}

		if inFlight > 0 {
			select {
			case <-done:
				inFlight--
			case <-ctx.Done():
				continue
			}
			// Absorb completions that landed together so they share a pass.
			for drained := false; !drained; {
				select {
				case <-done:
					inFlight--
				default:
					drained = true
				}
			}
			continue
		}

		if eligible := q.RetryEligible(); len(eligible) > 0 {
			for _, t := range eligible {
				if err := q.MarkRetry(t.ID, nil); err != nil {
					logger.Warn("requeue of %s refused: %v", t.ID, err)
				}
			}
			continue
		}

		p := q.Progress()
		logger.Warn("no actionable tasks left: %d completed, %d failed, %d pending", p.Completed, p.Failed, p.Pending)
		break
	}

	p := q.Progress()
	return p.Completed == p.Total, nil
}

func (e *Engine) checkAgents(q *task.Queue) error {
	if q == nil {
		return fmt.Errorf("nil task queue")
	}
	ve := &task.ValidationErrors{}
	for i, t := range q.Snapshot() {
		if _, ok := e.workers.Get(t.AssignedAgent); !ok {
			ve.Addf(fmt.Sprintf("tasks[%d].assigned_agent", i), "task %s is assigned to unknown agent %q", t.ID, t.AssignedAgent)
		}
	}
	return ve.OrNil()
}

func (e *Engine) dispatch(ctx context.Context, q *task.Queue, t task.Task, done chan<- string) {
	worker, _ := e.workers.Get(t.AssignedAgent)
	deps := q.DependencyResults(t.ID)
	e.metrics.TaskStarted()

	async.Go(e.logger, "task "+t.ID, func() {
		defer func() { done <- t.ID }()
		defer e.metrics.TaskFinished()
		e.runTask(ctx, q, worker, t, deps)
	})
}

func (e *Engine) runTask(ctx context.Context, q *task.Queue, worker Worker, t task.Task, deps map[string]string) {
	logger := logging.FromContext(ctx, e.logger)
	if e.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()
	}
	ctx, span := observability.StartSpan(ctx, traceScopeEngine, observability.SpanTaskExecute,
		attribute.String(observability.AttrTaskID, t.ID),
		attribute.String(observability.AttrAgent, t.AssignedAgent),
		attribute.Int("reasoner.task.attempt", t.Attempts),
	)
	defer span.End()

	started := time.Now()
	var result WorkResult
	err := async.Safe(e.logger, "task "+t.ID, func() error {
		var execErr error
		result, execErr = worker.Execute(ctx, WorkRequest{Goal: q.Goal(), Task: t, Dependencies: deps})
		return execErr
	})
	observability.MarkSpanResult(span, err)

	if err == nil {
		e.metrics.ObserveTaskDuration(t.AssignedAgent, "ok", time.Since(started))
		if markErr := q.MarkCompleted(t.ID, result.Content); markErr != nil {
			logger.Error("record completion of %s: %v", t.ID, markErr)
			return
		}
		logger.Info("task %s completed (attempt %d)", t.ID, t.Attempts)
		if t.ShowToUser && q.ClaimEmission(t.ID) {
			e.sink.Emit(ports.NewEvent(ports.EventIntermediateResult, observability.RunIDFromContext(ctx), map[string]any{
				"task_id": t.ID,
				"title":   t.Title,
				"result":  result.Content,
				"sources": result.Sources,
			}))
		}
		e.emitProgress(ctx, q)
		return
	}

	e.metrics.ObserveTaskDuration(t.AssignedAgent, "error", time.Since(started))
	switch retryErr := q.MarkRetry(t.ID, err); {
	case retryErr == nil:
		logger.Warn("task %s attempt %d failed, retrying: %v", t.ID, t.Attempts, err)
	case errors.Is(retryErr, task.ErrRetryBudgetExhausted):
		logger.Warn("task %s failed permanently after %d attempt(s): %v", t.ID, t.Attempts, err)
	default:
		logger.Error("record failure of %s: %v", t.ID, retryErr)
	}
	e.emitProgress(ctx, q)
}

func (e *Engine) emitProgress(ctx context.Context, q *task.Queue) {
	p := q.Progress()
	e.sink.Emit(ports.NewEvent(ports.EventProgress, observability.RunIDFromContext(ctx), map[string]any{
		"total":     p.Total,
		"completed": p.Completed,
		"failed":    p.Failed,
		"retries":   p.Retries,
	}))
}
