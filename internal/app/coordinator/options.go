package coordinator

import (
	"time"

	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/logging"
	"reasoner/internal/observability"
)

// Option configures optional behaviour of the coordinator.
type Option func(*Coordinator)

// WithLogger overrides the default no-op logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Coordinator) {
		if !logging.IsNil(logger) {
			c.logger = logging.WithComponent(logger, "coordinator")
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithSink sets the sink that receives strategy and final answer events.
func WithSink(sink ports.EventSink) Option {
	return func(c *Coordinator) {
		c.sink = ports.SinkOrNop(sink)
	}
}

// WithRetrievalTimeout bounds the document lookup of the single retrieval
// route. Non-positive values keep the default.
func WithRetrievalTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.retrievalTimeout = timeout
		}
	}
}

// WithRetrievalTopK sets how many documents the single retrieval route reads.
func WithRetrievalTopK(topK int) Option {
	return func(c *Coordinator) {
		if topK > 0 {
			c.retrievalTopK = topK
		}
	}
}

// WithTaskRetries sets the retry budget given to planned tasks that do not
// specify one.
func WithTaskRetries(retries int) Option {
	return func(c *Coordinator) {
		if retries >= 0 {
			c.taskRetries = retries
		}
	}
}

// WithEvaluation toggles answer evaluation and the stronger-strategy retry.
func WithEvaluation(enabled bool) Option {
	return func(c *Coordinator) {
		c.evaluate = enabled
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}
