package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/seantiz/compute/internal/model"
)

func sampleReport() *model.Report {
	r := &model.Report{
		RunID:         "01JABCDEFGHJKMNPQRSTVWXYZ0",
		Workers:       2,
		ActiveWorkers: 1,
		Degraded:      true,
		Results: []model.Result{
			{TaskID: 0, Kind: "increment", Status: model.StatusSucceeded, WorkerID: 0, Output: "state=101 steps=101"},
			{TaskID: 1, Kind: "fail", Status: model.StatusFailed, WorkerID: 0, Reason: "disk full"},
			{TaskID: 2, Kind: "fault", Status: model.StatusNotRun, WorkerID: model.NoWorker, Reason: "worker fault: bad"},
		},
		Faults:   []model.WorkerFault{{WorkerID: 1, TaskID: 2, Reason: "worker fault: bad"}},
		Duration: 1500 * time.Millisecond,
	}
	r.Tally()
	return r
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"text": FormatText, "JSON": FormatJSON, "Yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatText))

	out := buf.String()
	assert.Contains(t, out, "01JABCDEFGHJKMNPQRSTVWXYZ0 (degraded)")
	assert.Contains(t, out, "3 total, 1 succeeded, 1 failed, 1 not run")
	assert.Contains(t, out, "2 (1 active)")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, "FAULTED WORKER")
	assert.NotContains(t, out, "state=101")
}

func TestWriteTextCleanRunOmitsSections(t *testing.T) {
	r := &model.Report{RunID: "x", Workers: 1, ActiveWorkers: 1}
	r.Tally()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatText))
	out := buf.String()
	assert.Contains(t, out, "(completed)")
	assert.NotContains(t, out, "REASON")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "01JABCDEFGHJKMNPQRSTVWXYZ0", got["run_id"])
	assert.Equal(t, float64(3), got["total"])
	assert.Equal(t, float64(1500), got["duration_ms"])
	assert.Len(t, got["results"], 3)
	assert.Len(t, got["failures"], 2)
	assert.Equal(t, true, got["degraded"])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatYAML))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "01JABCDEFGHJKMNPQRSTVWXYZ0", got["run_id"])
	assert.Equal(t, 1, got["succeeded"])
	assert.Len(t, got["failures"], 2)
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, sampleReport(), "xml"))
	assert.Error(t, WriteRuns(&bytes.Buffer{}, nil, "xml"))
}

func TestWriteRuns(t *testing.T) {
	runs := []model.RunSummary{
		{RunID: "B", Workers: 3, Total: 5, Succeeded: 5, DurationMS: 12, StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{RunID: "A", Workers: 1, Total: 2, Failed: 1, NotRun: 1, Aborted: true},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRuns(&buf, runs, FormatText))
	assert.Contains(t, buf.String(), "2026-01-02T03:04:05Z")
	assert.Contains(t, buf.String(), "12ms")

	buf.Reset()
	require.NoError(t, WriteRuns(&buf, nil, FormatJSON))
	assert.JSONEq(t, "[]", buf.String())
}
