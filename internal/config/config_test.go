package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reasoner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: openai
  model: gpt-4o
  timeout: 30s
reasoning:
  max_iterations: 7
strategy:
  high_risk_topics: [medical]
rag:
  collections: [docs, notes]
tools:
  fallbacks:
    web_search: [search]
`)
	cfg, meta, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, meta.ConfigFile)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 7, cfg.Reasoning.MaxIterations)
	assert.Equal(t, []string{"medical"}, cfg.Strategy.HighRiskTopics)
	assert.Equal(t, []string{"docs", "notes"}, cfg.RAG.Collections)
	assert.Equal(t, []string{"search"}, cfg.Tools.Fallbacks["web_search"])

	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Execution.MaxParallelTasks)
	assert.Equal(t, 10*time.Second, cfg.RAG.RetrievalTimeout)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("REASONER_LLM_MODEL", "env-model")
	t.Setenv("REASONER_EXECUTION_MAX_PARALLEL_TASKS", "5")
	t.Setenv("TAVILY_API_KEY", "tvly-secret")

	cfg, _, err := Load(writeConfig(t, "llm:\n  model: file-model\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Execution.MaxParallelTasks)
	assert.Equal(t, "tvly-secret", cfg.Tools.WebSearch.APIKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, _, err := Load(writeConfig(t, `
llm:
  provider: carrier-pigeon
reasoning:
  max_iterations: 0
rag:
  chunk_size: 10
  chunk_overlap: 20
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
	assert.Contains(t, err.Error(), "reasoning.max_iterations")
	assert.Contains(t, err.Error(), "rag.chunk_overlap")
}

func TestValidateSelfFallback(t *testing.T) {
	cfg := Default()
	cfg.Tools.Fallbacks = map[string][]string{"search": {"search"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot fall back to itself")
}

func TestRedactedAndRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-1234567890abcdef"
	redacted := cfg.Redacted()
	assert.NotContains(t, redacted.LLM.APIKey, "567890ab")
	assert.Equal(t, "sk-1234567890abcdef", cfg.LLM.APIKey)

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, WriteFile(path, Default()))
	require.Error(t, WriteFile(path, Default()), "existing files are not overwritten")

	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Execution, loaded.Execution)
	assert.Equal(t, Default().LLM.Timeout, loaded.LLM.Timeout)
}

func TestStrategySelfDescription(t *testing.T) {
	self := Default().Strategy.SelfDescription([]string{"search"})
	assert.Equal(t, []string{"search"}, self.Tools)
	assert.Equal(t, 0.6, self.ConfidenceThreshold)
}
