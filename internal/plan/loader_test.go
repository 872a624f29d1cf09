package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
solution "kafka-bench" {
  results_dir = "./results"
  metadata = {
    cluster  = "perf-lab"
    replicas = 3
  }
}

target "broker1" {
  host = "10.0.0.1"
}

target "broker2" {
  host = "10.0.0.2"
  port = 9200
}

phase "PreCheck" {
  kind = "preflight"
}

phase "Install" {
  run = ["tools.install", "agent.verify"]
  args = {
    version = "3.7.0"
  }
}

phase "Monitor" {
  kind = "monitor"
}

phase "Report" {
  kind     = "report"
  optional = true
}

monitor {
  categories  = ["cpu", "memory"]
  interval    = "10s"
  duration    = "10m"
  grace       = "30s"
  max_samples = 100
}
`

func writePlan(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSingleFile(t *testing.T) {
	path := writePlan(t, "plan.hcl", samplePlan)

	p, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "kafka-bench", p.Solution)
	assert.Equal(t, "./results", p.ResultsDir)
	assert.Equal(t, map[string]string{"cluster": "perf-lab", "replicas": "3"}, p.Metadata)

	require.Len(t, p.Targets, 2)
	assert.Equal(t, "10.0.0.1:9099", p.Targets[0].Addr(), "default agent port applies")
	assert.Equal(t, "10.0.0.2:9200", p.Targets[1].Addr())

	require.Len(t, p.Phases, 4)
	assert.Equal(t, []string{"PreCheck", "Install", "Monitor", "Report"}, p.PhaseNames())
	assert.Equal(t, KindPreflight, p.Phases[0].Kind)
	assert.Equal(t, KindRemote, p.Phases[1].Kind, "kind defaults to remote")
	assert.Equal(t, []string{"tools.install", "agent.verify"}, p.Phases[1].Procedures)
	assert.Equal(t, "3.7.0", p.Phases[1].Args["version"])
	assert.True(t, p.Phases[3].Optional)

	require.NotNil(t, p.Monitor)
	assert.Equal(t, []string{"cpu", "memory"}, p.Monitor.Categories)
	assert.Equal(t, 10*time.Second, p.Monitor.Interval)
	assert.Equal(t, 10*time.Minute, p.Monitor.Duration)
	assert.Equal(t, 30*time.Second, p.Monitor.Grace)
	assert.Equal(t, 100, p.Monitor.MaxSamples)
}

func TestLoadDirectoryConsolidatesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_solution.hcl"), []byte(`
solution "redis-bench" {}

phase "Install" {
  run = ["tools.install"]
}
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_targets.hcl"), []byte(`
target "n1" {
  host = "10.1.0.1"
}
`), 0644))

	p, err := Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "redis-bench", p.Solution)
	assert.Len(t, p.Targets, 1)
	assert.Len(t, p.Phases, 1)
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing solution",
			content: `
target "n1" { host = "h" }
phase "Install" {}
`,
			wantErr: "missing solution block",
		},
		{
			name: "no targets",
			content: `
solution "x" {}
phase "Install" {}
`,
			wantErr: "at least one target",
		},
		{
			name: "no phases",
			content: `
solution "x" {}
target "n1" { host = "h" }
`,
			wantErr: "at least one phase",
		},
		{
			name: "duplicate phase",
			content: `
solution "x" {}
target "n1" { host = "h" }
phase "Install" {}
phase "Install" {}
`,
			wantErr: "duplicate phase",
		},
		{
			name: "unknown kind",
			content: `
solution "x" {}
target "n1" { host = "h" }
phase "Install" { kind = "sideways" }
`,
			wantErr: "unknown kind",
		},
		{
			name: "bad interval",
			content: `
solution "x" {}
target "n1" { host = "h" }
phase "Monitor" { kind = "monitor" }
monitor {
  categories = ["cpu"]
  interval   = "soon"
}
`,
			wantErr: "monitor interval",
		},
		{
			name: "monitor phase without monitor block",
			content: `
solution "x" {}
target "n1" { host = "h" }
phase "Monitor" { kind = "monitor" }
`,
			wantErr: "requires a monitor block",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writePlan(t, "plan.hcl", tc.content)
			_, err := Load(context.Background(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadMissingPath(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
	require.Error(t, err)
}
