package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	knownProviders = map[string]bool{
		"offline": true, "mock": true, "openai": true, "openrouter": true, "deepseek": true, "ollama": true,
	}
	knownEmbedders = map[string]bool{"hash": true, "openai": true}
	knownExporters = map[string]bool{"otlp": true, "zipkin": true, "none": true, "": true}
	knownLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
)

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	provider := strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if !knownProviders[provider] {
		add("llm.provider: unknown provider %q", c.LLM.Provider)
	}
	if provider != "offline" && provider != "mock" && strings.TrimSpace(c.LLM.Model) == "" {
		add("llm.model: required for provider %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature: %.2f is outside [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.MaxRetries < 0 {
		add("llm.max_retries: must not be negative")
	}

	if c.Reasoning.MaxIterations < 1 {
		add("reasoning.max_iterations: must be at least 1")
	}
	checkUnit(&errs, "reasoning.verification_threshold", c.Reasoning.VerificationThreshold)
	checkUnit(&errs, "reasoning.early_exit_confidence", c.Reasoning.EarlyExitConfidence)
	if c.Reasoning.MaxRetriesPerStep < 0 {
		add("reasoning.max_retries_per_step: must not be negative")
	}

	checkUnit(&errs, "strategy.confidence_threshold", c.Strategy.ConfidenceThreshold)

	if c.Execution.MaxParallelTasks < 1 {
		add("execution.max_parallel_tasks: must be at least 1")
	}
	if c.Execution.MaxSchedulerIterations < 1 {
		add("execution.max_scheduler_iterations: must be at least 1")
	}
	if c.Execution.DefaultMaxRetries < 0 {
		add("execution.default_max_retries: must not be negative")
	}
	if c.Execution.TaskTimeout < 0 {
		add("execution.task_timeout: must not be negative")
	}

	checkUnit(&errs, "reflection.retry_threshold", c.Reflection.RetryThreshold)
	if c.Reflection.Capacity < 0 {
		add("reflection.capacity: must not be negative")
	}

	if c.RAG.Enabled {
		if len(c.RAG.Collections) == 0 {
			add("rag.collections: at least one collection is required")
		}
		if c.RAG.TopK < 1 {
			add("rag.top_k: must be at least 1")
		}
		if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
			add("rag.chunk_overlap: %d must be smaller than chunk_size %d", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
		}
		if !knownEmbedders[strings.ToLower(c.RAG.Embedder.Provider)] {
			add("rag.embedder.provider: unknown embedder %q", c.RAG.Embedder.Provider)
		}
		checkUnit(&errs, "rag.min_similarity", c.RAG.MinSimilarity)
	}

	for tool, fallbacks := range c.Tools.Fallbacks {
		for _, fb := range fallbacks {
			if strings.EqualFold(fb, tool) {
				add("tools.fallbacks.%s: a tool cannot fall back to itself", tool)
			}
		}
	}

	if !knownLevels[strings.ToLower(c.Observability.Logging.Level)] {
		add("observability.logging.level: unknown level %q", c.Observability.Logging.Level)
	}
	if c.Observability.Tracing.Enabled && !knownExporters[strings.ToLower(c.Observability.Tracing.Exporter)] {
		add("observability.tracing.exporter: unknown exporter %q", c.Observability.Tracing.Exporter)
	}
	checkUnit(&errs, "observability.tracing.sample_rate", c.Observability.Tracing.SampleRate)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func checkUnit(errs *[]error, field string, v float64) {
	if v < 0 || v > 1 {
		*errs = append(*errs, fmt.Errorf("%s: %.2f is outside [0, 1]", field, v))
	}
}
