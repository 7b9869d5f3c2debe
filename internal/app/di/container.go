// Package di assembles the reasoner object graph from configuration.
package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"reasoner/internal/app/coordinator"
	"reasoner/internal/app/execution"
	"reasoner/internal/app/planner"
	"reasoner/internal/app/workers"
	"reasoner/internal/config"
	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/agent/react"
	"reasoner/internal/domain/agent/reflection"
	"reasoner/internal/domain/agent/strategy"
	"reasoner/internal/events"
	"reasoner/internal/llm"
	"reasoner/internal/logging"
	"reasoner/internal/observability"
	"reasoner/internal/rag"
	"reasoner/internal/toolregistry"
)

// Container holds the wired application. One container, and therefore one
// experience learner, exists per process.
type Container struct {
	Config      config.Config
	Logger      logging.Logger
	Metrics     *observability.Metrics
	Gatherer    prometheus.Gatherer
	Events      *events.Hub
	LLM         ports.LLMClient
	Gateway     *gateway.Gateway
	Stores      []*rag.Store
	Retriever   ports.Retriever
	Tools       *toolregistry.Registry
	React       *react.ReactEngine
	Workers     *execution.Registry
	Engine      *execution.Engine
	Planner     *planner.LLMPlanner
	Learner     *reflection.Learner
	Coordinator *coordinator.Coordinator

	tracer *observability.TracerProvider
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	logOutput io.Writer
	llm       ports.LLMClient
	registry  *prometheus.Registry
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *buildOptions) { o.logOutput = w }
}

// WithLLMClient replaces the configured language model client.
func WithLLMClient(client ports.LLMClient) Option {
	return func(o *buildOptions) { o.llm = client }
}

// WithMetricsRegistry registers collectors on reg instead of a fresh registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *buildOptions) { o.registry = reg }
}

// Build wires every component described by cfg.
func Build(cfg config.Config, opts ...Option) (*Container, error) {
	options := buildOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{Config: cfg}
	c.Logger = logging.FromSlog(observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: options.logOutput,
	}), "reasoner")
	logger := logging.WithComponent(c.Logger, "di")

	tracer, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	c.tracer = tracer

	reg := options.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c.Gatherer = reg
	c.Metrics = observability.MustNewMetrics(reg)
	c.Events = events.NewHub(0, c.Metrics)

	if err := c.buildLLM(cfg, options.llm); err != nil {
		return nil, err
	}
	if err := c.buildRetrieval(cfg); err != nil {
		return nil, err
	}
	if err := c.buildTools(cfg); err != nil {
		return nil, err
	}
	if err := c.buildEngines(cfg); err != nil {
		return nil, err
	}

	logger.Info("container ready: model=%s tools=%s workers=%s collections=%d",
		c.LLM.Model(), strings.Join(toolNames(c.Tools), ","), strings.Join(c.Workers.Names(), ","), len(c.Stores))
	return c, nil
}

func (c *Container) buildLLM(cfg config.Config, override ports.LLMClient) error {
	client := override
	if client == nil {
		var err error
		client, err = llm.New(llm.Config{
			Provider:   cfg.LLM.Provider,
			Model:      cfg.LLM.Model,
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
			Logger:     c.Logger,
		})
		if err != nil {
			return fmt.Errorf("init llm: %w", err)
		}
	}
	c.LLM = client
	c.Gateway = gateway.New(client, gateway.Config{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      c.Logger,
	})
	return nil
}

func (c *Container) buildRetrieval(cfg config.Config) error {
	if !cfg.RAG.Enabled {
		return nil
	}
	embedder, err := rag.NewEmbedder(rag.EmbedderConfig{
		Provider:   cfg.RAG.Embedder.Provider,
		Model:      cfg.RAG.Embedder.Model,
		APIKey:     cfg.RAG.Embedder.APIKey,
		BaseURL:    cfg.RAG.Embedder.BaseURL,
		Dimensions: cfg.RAG.Embedder.Dimensions,
		CacheSize:  cfg.RAG.Embedder.CacheSize,
		Logger:     c.Logger,
	})
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	retrievers := make([]ports.Retriever, 0, len(cfg.RAG.Collections))
	for _, name := range cfg.RAG.Collections {
		persist := ""
		if cfg.RAG.PersistPath != "" {
			persist = filepath.Join(cfg.RAG.PersistPath, name)
		}
		store, err := rag.NewStore(rag.StoreConfig{
			PersistPath:   persist,
			Collection:    name,
			MinSimilarity: float32(cfg.RAG.MinSimilarity),
		}, embedder)
		if err != nil {
			return fmt.Errorf("open collection %s: %w", name, err)
		}
		c.Stores = append(c.Stores, store)
		retrievers = append(retrievers, store)
	}
	if len(retrievers) == 1 {
		c.Retriever = retrievers[0]
	} else {
		c.Retriever = rag.NewMultiRetriever(c.Logger, retrievers...)
	}
	return nil
}

func (c *Container) buildTools(cfg config.Config) error {
	c.Tools = toolregistry.NewRegistry(toolregistry.Config{Logger: c.Logger, Metrics: c.Metrics})
	cache := toolregistry.CacheConfig{MaxSize: cfg.Tools.CacheSize, TTL: cfg.Tools.CacheTTL}

	var tools []toolregistry.Tool
	if c.Retriever != nil {
		tools = append(tools, toolregistry.WithCache(toolregistry.NewSearchTool(c.Retriever, cfg.RAG.TopK), cache))
	}
	tools = append(tools, toolregistry.NewCalculateTool())
	if cfg.Tools.WebSearch.APIKey != "" {
		tools = append(tools, toolregistry.WithCache(toolregistry.NewWebSearchTool(toolregistry.WebSearchConfig{
			APIKey:     cfg.Tools.WebSearch.APIKey,
			Endpoint:   cfg.Tools.WebSearch.Endpoint,
			MaxResults: cfg.Tools.WebSearch.MaxResults,
		}), cache))
	}

	degradation := toolregistry.DegradationConfig{FallbackMap: cfg.Tools.Fallbacks, Logger: c.Logger}
	for _, tool := range tools {
		if err := c.Tools.Register(toolregistry.WithFallbacks(tool, c.Tools.Get, degradation)); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}
	return nil
}

func (c *Container) buildEngines(cfg config.Config) error {
	c.React = react.NewReactEngine(react.ReactEngineConfig{
		Gateway:               c.Gateway,
		Tools:                 c.Tools,
		MaxIterations:         cfg.Reasoning.MaxIterations,
		VerificationThreshold: cfg.Reasoning.VerificationThreshold,
		MaxRetriesPerStep:     cfg.Reasoning.MaxRetriesPerStep,
		EarlyExitConfidence:   cfg.Reasoning.EarlyExitConfidence,
		ObservationLimit:      cfg.Reasoning.ObservationLimit,
		Logger:                c.Logger,
		Metrics:               c.Metrics,
		Sink:                  c.Events,
	})

	c.Learner = reflection.NewLearner(reflection.LearnerConfig{Capacity: cfg.Reflection.Capacity, Logger: c.Logger})
	if path := cfg.Reflection.HistoryPath; path != "" {
		if err := c.Learner.Load(path); err != nil {
			logging.WithComponent(c.Logger, "di").Warn("experience history ignored: %v", err)
		}
	}

	c.Workers = execution.NewRegistry()
	if err := workers.Register(c.Workers, c.Gateway, c.React, c.Retriever, c.Logger); err != nil {
		return fmt.Errorf("register workers: %w", err)
	}
	c.Engine = execution.NewEngine(c.Workers, c.Gateway, execution.Config{
		MaxParallelTasks:       cfg.Execution.MaxParallelTasks,
		MaxSchedulerIterations: cfg.Execution.MaxSchedulerIterations,
		TaskTimeout:            cfg.Execution.TaskTimeout,
		Logger:                 c.Logger,
		Metrics:                c.Metrics,
		Sink:                   c.Events,
	})
	c.Planner = planner.NewLLMPlanner(c.Gateway, planner.Config{MaxSteps: cfg.Execution.PlannerMaxSteps, Logger: c.Logger})

	selector := strategy.NewSelector(strategy.Config{
		Gateway: c.Gateway,
		Advisor: c.Learner,
		Logger:  c.Logger,
		Metrics: c.Metrics,
	})
	evaluator := reflection.NewEvaluator(reflection.EvaluatorConfig{
		Gateway:        c.Gateway,
		RetryThreshold: cfg.Reflection.RetryThreshold,
		Logger:         c.Logger,
		Metrics:        c.Metrics,
	})

	c.Coordinator = coordinator.New(coordinator.Dependencies{
		Gateway:   c.Gateway,
		Selector:  selector,
		Self:      cfg.Strategy.SelfDescription(toolNames(c.Tools)),
		Retriever: c.Retriever,
		React:     c.React,
		Planner:   c.Planner,
		Engine:    c.Engine,
		Workers:   c.Workers,
		Evaluator: evaluator,
		Learner:   c.Learner,
	},
		coordinator.WithLogger(c.Logger),
		coordinator.WithMetrics(c.Metrics),
		coordinator.WithSink(c.Events),
		coordinator.WithRetrievalTimeout(cfg.RAG.RetrievalTimeout),
		coordinator.WithRetrievalTopK(cfg.RAG.TopK),
		coordinator.WithTaskRetries(cfg.Execution.DefaultMaxRetries),
		coordinator.WithEvaluation(cfg.Reflection.Enabled),
	)
	return nil
}

// Store returns the collection called name.
func (c *Container) Store(name string) (*rag.Store, bool) {
	for _, s := range c.Stores {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Shutdown persists learned experience, closes the event hub and flushes
// pending spans.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	if path := c.Config.Reflection.HistoryPath; path != "" && c.Learner != nil {
		if err := c.Learner.Save(path); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Events != nil {
		c.Events.Close()
	}
	if c.tracer != nil {
		if err := c.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}

func toolNames(r *toolregistry.Registry) []string {
	if r == nil {
		return nil
	}
	defs := r.List()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}
