package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REASONER_LLM_MODEL.
const EnvPrefix = "REASONER"

// envAliases are extra variable names accepted for secrets commonly
// exported under their vendor names.
var envAliases = map[string][]string{
	"llm.api_key":              {"REASONER_LLM_API_KEY", "OPENAI_API_KEY"},
	"rag.embedder.api_key":     {"REASONER_RAG_EMBEDDER_API_KEY", "OPENAI_API_KEY"},
	"tools.web_search.api_key": {"REASONER_TOOLS_WEB_SEARCH_API_KEY", "TAVILY_API_KEY"},
}

// Load reads configuration. An explicit path must exist; without one the
// first reasoner.yaml found in the working directory or ~/.reasoner is used,
// and a missing file leaves the defaults in place. Environment variables
// override both.
func Load(path string) (Config, Metadata, error) {
	meta := Metadata{LoadedAt: time.Now()}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, meta, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(expandHome(path))
		if err := v.ReadInConfig(); err != nil {
			return Config{}, meta, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("reasoner")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".reasoner"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, meta, fmt.Errorf("read config: %w", err)
			}
		}
	}
	meta.ConfigFile = v.ConfigFileUsed()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, meta, fmt.Errorf("decode config: %w", err)
	}
	cfg.RAG.PersistPath = expandHome(cfg.RAG.PersistPath)
	cfg.Reflection.HistoryPath = expandHome(cfg.Reflection.HistoryPath)

	if err := cfg.Validate(); err != nil {
		return Config{}, meta, err
	}
	return cfg, meta, nil
}

// setDefaults registers every key so that environment overrides apply even
// when no file mentions the key.
func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"llm.provider":    d.LLM.Provider,
		"llm.model":       d.LLM.Model,
		"llm.api_key":     d.LLM.APIKey,
		"llm.base_url":    d.LLM.BaseURL,
		"llm.timeout":     d.LLM.Timeout,
		"llm.max_retries": d.LLM.MaxRetries,
		"llm.temperature": d.LLM.Temperature,
		"llm.max_tokens":  d.LLM.MaxTokens,

		"reasoning.max_iterations":         d.Reasoning.MaxIterations,
		"reasoning.verification_threshold": d.Reasoning.VerificationThreshold,
		"reasoning.max_retries_per_step":   d.Reasoning.MaxRetriesPerStep,
		"reasoning.early_exit_confidence":  d.Reasoning.EarlyExitConfidence,
		"reasoning.observation_limit":      d.Reasoning.ObservationLimit,

		"strategy.domains":              d.Strategy.Domains,
		"strategy.confidence_threshold": d.Strategy.ConfidenceThreshold,
		"strategy.high_risk_topics":     d.Strategy.HighRiskTopics,

		"execution.max_parallel_tasks":       d.Execution.MaxParallelTasks,
		"execution.max_scheduler_iterations": d.Execution.MaxSchedulerIterations,
		"execution.task_timeout":             d.Execution.TaskTimeout,
		"execution.default_max_retries":      d.Execution.DefaultMaxRetries,
		"execution.planner_max_steps":        d.Execution.PlannerMaxSteps,

		"reflection.enabled":         d.Reflection.Enabled,
		"reflection.retry_threshold": d.Reflection.RetryThreshold,
		"reflection.capacity":        d.Reflection.Capacity,
		"reflection.history_path":    d.Reflection.HistoryPath,

		"rag.enabled":             d.RAG.Enabled,
		"rag.persist_path":        d.RAG.PersistPath,
		"rag.collections":         d.RAG.Collections,
		"rag.top_k":               d.RAG.TopK,
		"rag.min_similarity":      d.RAG.MinSimilarity,
		"rag.retrieval_timeout":   d.RAG.RetrievalTimeout,
		"rag.chunk_size":          d.RAG.ChunkSize,
		"rag.chunk_overlap":       d.RAG.ChunkOverlap,
		"rag.extensions":          d.RAG.Extensions,
		"rag.embedder.provider":   d.RAG.Embedder.Provider,
		"rag.embedder.model":      d.RAG.Embedder.Model,
		"rag.embedder.api_key":    d.RAG.Embedder.APIKey,
		"rag.embedder.base_url":   d.RAG.Embedder.BaseURL,
		"rag.embedder.dimensions": d.RAG.Embedder.Dimensions,
		"rag.embedder.cache_size": d.RAG.Embedder.CacheSize,

		"tools.cache_size":             d.Tools.CacheSize,
		"tools.cache_ttl":              d.Tools.CacheTTL,
		"tools.fallbacks":              d.Tools.Fallbacks,
		"tools.web_search.api_key":     d.Tools.WebSearch.APIKey,
		"tools.web_search.endpoint":    d.Tools.WebSearch.Endpoint,
		"tools.web_search.max_results": d.Tools.WebSearch.MaxResults,

		"observability.logging.level":           d.Observability.Logging.Level,
		"observability.logging.format":          d.Observability.Logging.Format,
		"observability.metrics.enabled":         d.Observability.Metrics.Enabled,
		"observability.metrics.listen":          d.Observability.Metrics.Listen,
		"observability.tracing.enabled":         d.Observability.Tracing.Enabled,
		"observability.tracing.exporter":        d.Observability.Tracing.Exporter,
		"observability.tracing.otlp_endpoint":   d.Observability.Tracing.OTLPEndpoint,
		"observability.tracing.zipkin_endpoint": d.Observability.Tracing.ZipkinEndpoint,
		"observability.tracing.sample_rate":     d.Observability.Tracing.SampleRate,
		"observability.tracing.service_name":    d.Observability.Tracing.ServiceName,
		"observability.tracing.service_version": d.Observability.Tracing.ServiceVersion,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
