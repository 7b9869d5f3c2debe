package react

import (
	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/logging"
	"reasoner/internal/observability"
)

const (
	defaultMaxIterations         = 5
	defaultVerificationThreshold = 0.6
	defaultMaxRetriesPerStep     = 2
	defaultEarlyExitConfidence   = 0.85
	defaultObservationLimit      = 1500
)

// ReactEngineConfig wires the engine's collaborators and budgets.
type ReactEngineConfig struct {
	Gateway *gateway.Gateway
	Tools   ports.ToolInvoker

	MaxIterations         int
	VerificationThreshold float64
	// MaxRetriesPerStep times MaxIterations is the self-correction budget
	// shared by every step of a run.
	MaxRetriesPerStep   int
	EarlyExitConfidence float64
	ObservationLimit    int

	Logger  logging.Logger
	Metrics *observability.Metrics
	Sink    ports.EventSink
}

// ReactEngine runs the think/act/verify/self-correct loop.
type ReactEngine struct {
	gateway               *gateway.Gateway
	tools                 ports.ToolInvoker
	maxIterations         int
	verificationThreshold float64
	maxRetriesPerStep     int
	earlyExitConfidence   float64
	observationLimit      int
	logger                logging.Logger
	metrics               *observability.Metrics
	sink                  ports.EventSink
}

// NewReactEngine creates a new ReAct engine with injected dependencies.
func NewReactEngine(cfg ReactEngineConfig) *ReactEngine {
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	threshold := cfg.VerificationThreshold
	if threshold <= 0 {
		threshold = defaultVerificationThreshold
	}
	retries := cfg.MaxRetriesPerStep
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultMaxRetriesPerStep
	}
	earlyExit := cfg.EarlyExitConfidence
	if earlyExit <= 0 {
		earlyExit = defaultEarlyExitConfidence
	}
	limit := cfg.ObservationLimit
	if limit <= 0 {
		limit = defaultObservationLimit
	}

	return &ReactEngine{
		gateway:               cfg.Gateway,
		tools:                 cfg.Tools,
		maxIterations:         maxIterations,
		verificationThreshold: threshold,
		maxRetriesPerStep:     retries,
		earlyExitConfidence:   earlyExit,
		observationLimit:      limit,
		logger:                logging.WithComponent(cfg.Logger, "react"),
		metrics:               cfg.Metrics,
		sink:                  ports.SinkOrNop(cfg.Sink),
	}
}
