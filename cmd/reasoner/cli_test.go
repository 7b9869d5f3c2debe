package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonx "reasoner/internal/shared/json"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "reasoner.yaml")
	body := strings.Join([]string{
		"llm:",
		"  provider: offline",
		"reflection:",
		"  history_path: " + filepath.Join(dir, "experience.json"),
		"rag:",
		"  persist_path: " + filepath.Join(dir, "vectors"),
		"observability:",
		"  logging:",
		"    level: error",
		"  metrics:",
		"    enabled: false",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, _, err := execute(t, "--config", cfgPath, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "reasoner dev")
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reasoner.yaml")
	out, _, err := execute(t, "--config", "", "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, _, err = execute(t, "config", "init", path)
	assert.Error(t, err, "init never overwrites")

	out, _, err = execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# source: "+path)
	assert.Contains(t, out, "provider: offline")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	t.Setenv("REASONER_LLM_API_KEY", "sk-test-1234567890abcdef")
	out, _, err := execute(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-test-1234567890abcdef")
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "version")
	assert.Error(t, err)
}

func TestAskQuiet(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, _, err := execute(t, "--config", cfgPath, "ask", "--quiet", "--strategy", "direct", "What", "is", "Go?")
	require.NoError(t, err)
	assert.Contains(t, out, "Offline answer")
}

func TestAskJSON(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, _, err := execute(t, "--config", cfgPath, "ask", "--json", "--strategy", "direct_answer", "What is Go?")
	require.NoError(t, err)

	var resp struct {
		RunID    string `json:"run_id"`
		Answer   string `json:"answer"`
		Strategy string `json:"strategy"`
	}
	require.NoError(t, jsonx.Unmarshal([]byte(out), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.NotEmpty(t, resp.Answer)
	assert.Equal(t, "direct_answer", resp.Strategy)
}

func TestAskRendersStrategy(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, stderr, err := execute(t, "--config", cfgPath, "--no-color", "ask", "--strategy", "direct_answer", "What is Go?")
	require.NoError(t, err)
	assert.Contains(t, stderr, "strategy direct_answer")
	assert.Contains(t, out, "strategy=direct_answer")
}

func TestAskRejectsUnknownStrategy(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	_, _, err := execute(t, "--config", cfgPath, "ask", "--strategy", "guess", "What is Go?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestPlanFromFile(t *testing.T) {
	cfgPath, dir := writeTestConfig(t)
	planPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(`goal: Explain goroutines
steps:
  - title: Draft
    agent: llm
  - title: Polish
    agent: llm
    depends_on: [1]
`), 0o600))

	out, _, err := execute(t, "--config", cfgPath, "plan", "--file", planPath, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan: Explain goroutines")
	assert.Contains(t, out, "2. Polish [llm] after 1")

	out, _, err = execute(t, "--config", cfgPath, "plan", "--file", planPath)
	require.NoError(t, err)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "completed=2")
}

func TestPlanRejectsUnknownAgent(t *testing.T) {
	cfgPath, dir := writeTestConfig(t)
	planPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte("goal: g\nsteps:\n  - title: Fly\n    agent: pilot\n"), 0o600))

	_, _, err := execute(t, "--config", cfgPath, "plan", "--file", planPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent")
}

func TestPlanRequiresGoal(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	_, _, err := execute(t, "--config", cfgPath, "plan")
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	cfgPath, dir := writeTestConfig(t)
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "raft.md"), []byte("# Raft\n\nRaft elects a leader with randomized timeouts.\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "image.png"), []byte{0x89, 0x50}, 0o600))

	out, _, err := execute(t, "--config", cfgPath, "ingest", docs)
	require.NoError(t, err)
	assert.Contains(t, out, "ingested 1 files")
	assert.Contains(t, out, "documents")

	_, _, err = execute(t, "--config", cfgPath, "ingest", "--collection", "missing", docs)
	assert.Error(t, err)
}
