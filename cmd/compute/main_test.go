package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with args and stdin, returning stdout and the exit code.
func execute(t *testing.T, stdin string, args ...string) (string, int) {
	t.Helper()
	root, err := newRootCmd()
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	code := exitCode(root.Execute())
	return out.String(), code
}

func TestRunFromStdin(t *testing.T) {
	out, code := execute(t, "increment 0\ndecrement 0\nfail nope\nsleep 1ms\nspin 3\n", "--threads", "3")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "5 total, 4 succeeded, 1 failed, 0 not run")
	assert.Contains(t, out, "nope")
}

func TestRunFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tasks:\n  - kind: increment\n    args: [3]\n"), 0o644))

	root, err := newRootCmd()
	require.NoError(t, err)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--log-level", "error", "--format", "json", path})
	require.NoError(t, root.Execute())

	var rep map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, float64(1), rep["total"])
	assert.Equal(t, float64(1), rep["succeeded"])
}

func TestRunInvalidThreads(t *testing.T) {
	_, code := execute(t, "increment 0\n", "--threads", "0")
	assert.Equal(t, exitInvalidConfig, code)
}

func TestRunNonNumericThreads(t *testing.T) {
	for _, threads := range []string{"abc", "1.5"} {
		_, code := execute(t, "increment 0\n", "--threads", threads)
		assert.Equal(t, exitInvalidConfig, code, "--threads %s", threads)
	}
}

func TestHistoryUnknownFlag(t *testing.T) {
	_, code := execute(t, "", "history", "--limit", "many")
	assert.Equal(t, exitInvalidConfig, code)
}

func TestRunInvalidFaultPolicy(t *testing.T) {
	_, code := execute(t, "increment 0\n", "--fault-policy", "retry")
	assert.Equal(t, exitInvalidConfig, code)
}

func TestRunInvalidReportFormat(t *testing.T) {
	_, code := execute(t, "increment 0\n", "--format", "xml")
	assert.Equal(t, exitInvalidConfig, code)
}

func TestRunMalformedProgram(t *testing.T) {
	out, code := execute(t, "increment 0\nincrement\n", "--threads", "2")
	assert.Equal(t, exitLoadFailure, code)
	assert.Empty(t, out)
}

func TestRunMissingProgramFile(t *testing.T) {
	_, code := execute(t, "", filepath.Join(t.TempDir(), "missing.prog"))
	assert.Equal(t, exitLoadFailure, code)
}

func TestRunConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "compute.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("threads: 0\n"), 0o644))

	_, code := execute(t, "increment 0\n", "--config", cfgPath)
	assert.Equal(t, exitInvalidConfig, code)
}

func TestRunWritesMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compute.prom")
	_, code := execute(t, "increment 0\nfault x\nincrement 1\n", "--threads", "2", "--metrics-file", path)
	require.Equal(t, exitOK, code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `compute_tasks_total{status="succeeded"} 2`)
	assert.Contains(t, string(data), "compute_worker_faults_total 1")
}

func TestRunProgress(t *testing.T) {
	root, err := newRootCmd()
	require.NoError(t, err)
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader("increment 0\nfail boom\n"))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--log-level", "error", "--progress"})
	require.NoError(t, root.Execute())

	assert.Contains(t, errOut.String(), "task 0 increment succeeded")
	assert.Contains(t, errOut.String(), "task 1 fail failed: boom")
}

func TestHistoryAndShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "compute.db")

	_, code := execute(t, "increment 0\n", "--db", db)
	require.Equal(t, exitOK, code)
	_, code = execute(t, "increment 1\nfail x\n", "--db", db, "--threads", "2")
	require.Equal(t, exitOK, code)

	out, code := execute(t, "", "history", "--db", db, "--format", "json")
	require.Equal(t, exitOK, code)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, float64(2), runs[0]["total"], "newest run first")

	runID, ok := runs[0]["run_id"].(string)
	require.True(t, ok)
	out, code = execute(t, "", "show", runID, "--db", db)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "2 total, 1 succeeded, 1 failed")

	_, code = execute(t, "", "show", "nope", "--db", db)
	assert.Equal(t, exitFailure, code)
}

func TestHistoryRequiresDatabase(t *testing.T) {
	_, code := execute(t, "", "history")
	assert.Equal(t, exitInvalidConfig, code)
}
