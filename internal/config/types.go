// Package config defines the reasoner configuration and loads it from YAML
// files and REASONER_* environment variables.
package config

import (
	"time"

	"reasoner/internal/domain/agent/strategy"
	"reasoner/internal/observability"
)

// Config is the complete runtime configuration.
type Config struct {
	LLM           LLMConfig            `yaml:"llm" mapstructure:"llm"`
	Reasoning     ReasoningConfig      `yaml:"reasoning" mapstructure:"reasoning"`
	Strategy      StrategyConfig       `yaml:"strategy" mapstructure:"strategy"`
	Execution     ExecutionConfig      `yaml:"execution" mapstructure:"execution"`
	Reflection    ReflectionConfig     `yaml:"reflection" mapstructure:"reflection"`
	RAG           RAGConfig            `yaml:"rag" mapstructure:"rag"`
	Tools         ToolsConfig          `yaml:"tools" mapstructure:"tools"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// LLMConfig selects the language model backend.
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"` // offline, openai, openrouter, deepseek, ollama
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `yaml:"max_retries" mapstructure:"max_retries"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ReasoningConfig tunes the think/act/verify loop.
type ReasoningConfig struct {
	MaxIterations         int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	VerificationThreshold float64 `yaml:"verification_threshold" mapstructure:"verification_threshold"`
	MaxRetriesPerStep     int     `yaml:"max_retries_per_step" mapstructure:"max_retries_per_step"`
	EarlyExitConfidence   float64 `yaml:"early_exit_confidence" mapstructure:"early_exit_confidence"`
	ObservationLimit      int     `yaml:"observation_limit" mapstructure:"observation_limit"`
}

// StrategyConfig describes what the engine can do, for strategy selection.
type StrategyConfig struct {
	Domains             []string `yaml:"domains" mapstructure:"domains"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	HighRiskTopics      []string `yaml:"high_risk_topics" mapstructure:"high_risk_topics"`
}

// SelfDescription converts the section for the selector, advertising tools.
func (c StrategyConfig) SelfDescription(tools []string) strategy.SelfDescription {
	return strategy.SelfDescription{
		Domains:             append([]string(nil), c.Domains...),
		Tools:               append([]string(nil), tools...),
		ConfidenceThreshold: c.ConfidenceThreshold,
		HighRiskTopics:      append([]string(nil), c.HighRiskTopics...),
	}
}

// ExecutionConfig tunes planning and the task engine.
type ExecutionConfig struct {
	MaxParallelTasks       int           `yaml:"max_parallel_tasks" mapstructure:"max_parallel_tasks"`
	MaxSchedulerIterations int           `yaml:"max_scheduler_iterations" mapstructure:"max_scheduler_iterations"`
	TaskTimeout            time.Duration `yaml:"task_timeout" mapstructure:"task_timeout"`
	DefaultMaxRetries      int           `yaml:"default_max_retries" mapstructure:"default_max_retries"`
	PlannerMaxSteps        int           `yaml:"planner_max_steps" mapstructure:"planner_max_steps"`
}

// ReflectionConfig tunes answer evaluation and experience learning.
type ReflectionConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	RetryThreshold float64 `yaml:"retry_threshold" mapstructure:"retry_threshold"`
	Capacity       int     `yaml:"capacity" mapstructure:"capacity"`
	// HistoryPath persists learned experience between runs when set.
	HistoryPath string `yaml:"history_path" mapstructure:"history_path"`
}

// RAGConfig configures document retrieval.
type RAGConfig struct {
	Enabled          bool           `yaml:"enabled" mapstructure:"enabled"`
	PersistPath      string         `yaml:"persist_path" mapstructure:"persist_path"`
	Collections      []string       `yaml:"collections" mapstructure:"collections"`
	TopK             int            `yaml:"top_k" mapstructure:"top_k"`
	MinSimilarity    float64        `yaml:"min_similarity" mapstructure:"min_similarity"`
	RetrievalTimeout time.Duration  `yaml:"retrieval_timeout" mapstructure:"retrieval_timeout"`
	ChunkSize        int            `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap     int            `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	Extensions       []string       `yaml:"extensions" mapstructure:"extensions"`
	Embedder         EmbedderConfig `yaml:"embedder" mapstructure:"embedder"`
}

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // hash, openai
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
	CacheSize  int    `yaml:"cache_size" mapstructure:"cache_size"`
}

// ToolsConfig configures the tool registry.
type ToolsConfig struct {
	CacheSize int                 `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTL  time.Duration       `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	Fallbacks map[string][]string `yaml:"fallbacks" mapstructure:"fallbacks"`
	WebSearch WebSearchConfig     `yaml:"web_search" mapstructure:"web_search"`
}

// WebSearchConfig configures the Tavily backed web_search tool. The tool is
// registered only when an API key is present.
type WebSearchConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
}

// Metadata describes where a loaded configuration came from.
type Metadata struct {
	ConfigFile string
	LoadedAt   time.Time
}

// Default returns the built-in configuration. It runs fully offline.
func Default() Config {
	self := strategy.DefaultSelfDescription()
	return Config{
		LLM: LLMConfig{
			Provider:    "offline",
			Model:       "gpt-4o-mini",
			Timeout:     120 * time.Second,
			MaxRetries:  3,
			Temperature: 0.3,
			MaxTokens:   1024,
		},
		Reasoning: ReasoningConfig{
			MaxIterations:         5,
			VerificationThreshold: 0.6,
			MaxRetriesPerStep:     2,
			EarlyExitConfidence:   0.85,
			ObservationLimit:      1500,
		},
		Strategy: StrategyConfig{
			Domains:             self.Domains,
			ConfidenceThreshold: self.ConfidenceThreshold,
			HighRiskTopics:      self.HighRiskTopics,
		},
		Execution: ExecutionConfig{
			MaxParallelTasks:       3,
			MaxSchedulerIterations: 100,
			TaskTimeout:            2 * time.Minute,
			DefaultMaxRetries:      2,
			PlannerMaxSteps:        8,
		},
		Reflection: ReflectionConfig{
			Enabled:        true,
			RetryThreshold: 0.6,
			Capacity:       100,
		},
		RAG: RAGConfig{
			Enabled:          true,
			Collections:      []string{"documents"},
			TopK:             5,
			RetrievalTimeout: 10 * time.Second,
			ChunkSize:        512,
			ChunkOverlap:     50,
			Extensions:       []string{".md", ".txt", ".rst"},
			Embedder: EmbedderConfig{
				Provider:   "hash",
				Model:      "text-embedding-3-small",
				Dimensions: 256,
				CacheSize:  10000,
			},
		},
		Tools: ToolsConfig{
			CacheSize: 256,
			CacheTTL:  5 * time.Minute,
			Fallbacks: map[string][]string{"web_search": {"search"}},
			WebSearch: WebSearchConfig{
				Endpoint:   "https://api.tavily.com/search",
				MaxResults: 5,
			},
		},
		Observability: observability.DefaultConfig(),
	}
}
