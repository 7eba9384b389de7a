package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/jazamiti-consensus/internal/config"
	"github.com/johnayoung/jazamiti-consensus/internal/output"
)

// isolateEnv clears every variable the configuration reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, p := range []string{"OPENAI", "GEMINI", "CLAUDE"} {
		t.Setenv("ENABLE_"+p, "false")
		t.Setenv(p+"_API_KEY", "")
	}
	t.Setenv("CONSENSUS_THRESHOLD", "")
	t.Setenv("FALLBACK_MODEL", "")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeRecords(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	isolateEnv(t)
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "jazamiti ")
	assert.Contains(t, out, "commit:")
}

func TestConfigCheck_NoProviders(t *testing.T) {
	isolateEnv(t)

	out, _, err := execute(t, "config", "check", "--json")
	assert.ErrorIs(t, err, errInvalidConfig)

	var report config.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.IsValid)
	assert.Contains(t, report.Errors, config.MsgNoProviders)
}

func TestConfigCheck_Valid(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ENABLE_OPENAI", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CONSENSUS_THRESHOLD", "1")

	out, _, err := execute(t, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestServe_InvalidConfigRefusesToStart(t *testing.T) {
	isolateEnv(t)

	_, stderr, err := execute(t, "serve", "--addr", "127.0.0.1:0")
	assert.ErrorIs(t, err, errInvalidConfig)
	assert.Contains(t, stderr, config.MsgNoProviders)
}

func TestStatus_JSON(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ENABLE_CLAUDE", "true")
	t.Setenv("CLAUDE_API_KEY", "sk-ant-test")

	out, _, err := execute(t, "status", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"services":{"openai":false,"gemini":false,"claude":true},"total_enabled":1}`, out)
}

func TestModels(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash")

	out, _, err := execute(t, "models", "--json")
	require.NoError(t, err)

	var entries []modelEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "gemini-2.0-flash", entries[1].Model)
	assert.Nil(t, entries[1].Available)
}

func TestValidate_RuleChecksOnly(t *testing.T) {
	isolateEnv(t)
	path := writeRecords(t, `[{"id": "a", "name": "Mango"}]`)

	out, _, err := execute(t, "validate", "--skip-ai", "--json", path)
	if err != nil {
		assert.ErrorIs(t, err, errChecksFailed)
	}

	var report output.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, path, report.Source)
	assert.Len(t, report.Rules, 5)
	assert.Empty(t, report.Consensus)
	assert.Equal(t, err == nil, report.Passed())
}

func TestValidate_InvalidConfigSkipsAI(t *testing.T) {
	isolateEnv(t)
	path := writeRecords(t, `[{"id": "a", "name": "Mango"}]`)

	out, _, _ := execute(t, "validate", "--json", path)

	var report output.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Config.IsValid)
	assert.Contains(t, report.Warnings, "AI validation skipped: configuration is invalid")
}

func TestValidate_FailedStructureExitsNonZero(t *testing.T) {
	isolateEnv(t)
	path := writeRecords(t, `[]`)

	_, _, err := execute(t, "validate", "--skip-ai", "--json", path)
	assert.ErrorIs(t, err, errChecksFailed)
}

func TestValidate_AutoSave(t *testing.T) {
	isolateEnv(t)
	path := writeRecords(t, `[{"id": "a", "name": "Mango"}]`)
	dataDir := t.TempDir()

	_, _, _ = execute(t, "validate", "--skip-ai", "--quiet", "--data-dir", dataDir, path)

	runs, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.FileExists(t, filepath.Join(dataDir, runs[0].Name(), "result.json"))
	assert.FileExists(t, filepath.Join(dataDir, runs[0].Name(), "summary.md"))
}

func TestValidate_MissingFile(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, "validate", "--skip-ai", filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "opening records file")
}

func TestInvalidLogLevel(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, "--log-level", "loud", "version")
	assert.ErrorContains(t, err, "invalid --log-level")
}
