package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/benchgrid/internal/runstate"
)

func sampleState() *runstate.RunState {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	started := created.Add(time.Minute)
	completed := started.Add(42 * time.Minute)
	return &runstate.RunState{
		RunID:       "run-abc",
		Solution:    "kafka-bench",
		Status:      runstate.StatusCompleted,
		CreatedAt:   created,
		StartedAt:   &started,
		CompletedAt: &completed,
		PhaseOrder:  []string{"Install", "Monitor", "Report"},
		Phases: map[string]*runstate.PhaseState{
			"Install": {Status: runstate.PhaseCompleted, DurationSeconds: 93.5},
			"Monitor": {Status: runstate.PhaseFailed, DurationSeconds: 12, Error: "agent unreachable"},
			"Report":  {Status: runstate.PhaseSkipped},
		},
		Metadata: map[string]string{"cluster": "perf-lab"},
	}
}

func TestRenderIncludesRunAndPhases(t *testing.T) {
	r := New("")
	out, err := r.Render(sampleState())
	require.NoError(t, err)

	assert.Contains(t, out, "# Benchmark Report: kafka-bench")
	assert.Contains(t, out, "| Run ID | run-abc |")
	assert.Contains(t, out, "| Status | completed |")
	assert.Contains(t, out, "| Wall time | 42m0s |")
	assert.Contains(t, out, "| cluster | perf-lab |")

	assert.Contains(t, out, "| Install | completed | 1m33.5s | - |")
	assert.Contains(t, out, "| Monitor | failed | 12s | agent unreachable |")
	assert.Contains(t, out, "| Report | skipped | - | - |")

	assert.NotContains(t, out, "## Telemetry", "no telemetry dir, no telemetry section")
}

func TestRenderIncludesTelemetryAggregates(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i := 1; i <= 4; i++ {
		lines = append(lines, fmt.Sprintf(
			`{"timestamp":"2025-06-01T10:00:0%dZ","node":"n1","counter":"cpu.busy","value":%d}`, i, i*10))
	}
	lines = append(lines, `{"timestamp":"2025-06-01T10:00:05Z","node":"n2","error":"scrape failed"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu.jsonl"),
		[]byte(strings.Join(lines, "\n")+"\n"), 0644))

	r := New(dir)
	out, err := r.Render(sampleState())
	require.NoError(t, err)

	assert.Contains(t, out, "## Telemetry")
	// 10, 20, 30, 40: avg 25, min 10, max 40. The error record is excluded.
	assert.Contains(t, out, "| cpu.busy | 4 | 25 | 10 | 40 |")
}

func TestWritePersistsReport(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "results")

	path, err := New("").Write(context.Background(), sampleState(), outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "report.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Benchmark Report: kafka-bench")
}
