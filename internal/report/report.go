package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/specialistvlad/benchgrid/internal/collector"
	"github.com/specialistvlad/benchgrid/internal/ctxlog"
	"github.com/specialistvlad/benchgrid/internal/runstate"
)

// fileName is the rendered report's name inside the results directory.
const fileName = "report.md"

// Renderer turns a run record plus its telemetry directory into markdown.
type Renderer struct {
	telemetryDir string
}

// New creates a Renderer reading telemetry streams from telemetryDir.
func New(telemetryDir string) *Renderer {
	return &Renderer{telemetryDir: telemetryDir}
}

// Write renders the report for state and writes it to outDir, returning the
// written path. Missing telemetry is not an error; the telemetry section is
// simply omitted.
func (r *Renderer) Write(ctx context.Context, state *runstate.RunState, outDir string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	content, err := r.Render(state)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(outDir, fileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	logger.Info("📊 Report written.", "run_id", state.RunID, "path", path)
	return path, nil
}

// Render produces the markdown document for state.
func (r *Renderer) Render(state *runstate.RunState) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# Benchmark Report: %s\n\n", state.Solution)
	writeRunTable(&b, state)
	writePhaseTable(&b, state)
	if err := r.writeTelemetry(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeRunTable(b *strings.Builder, state *runstate.RunState) {
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Run ID | %s |\n", state.RunID)
	fmt.Fprintf(b, "| Status | %s |\n", state.Status)
	fmt.Fprintf(b, "| Created | %s |\n", state.CreatedAt.Format(time.RFC3339))
	if state.StartedAt != nil {
		fmt.Fprintf(b, "| Started | %s |\n", state.StartedAt.Format(time.RFC3339))
	}
	if state.CompletedAt != nil {
		fmt.Fprintf(b, "| Completed | %s |\n", state.CompletedAt.Format(time.RFC3339))
		if state.StartedAt != nil {
			fmt.Fprintf(b, "| Wall time | %s |\n", state.CompletedAt.Sub(*state.StartedAt).Round(time.Second))
		}
	}

	if len(state.Metadata) > 0 {
		keys := make([]string, 0, len(state.Metadata))
		for k := range state.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "| %s | %s |\n", k, state.Metadata[k])
		}
	}
	b.WriteString("\n")
}

func writePhaseTable(b *strings.Builder, state *runstate.RunState) {
	b.WriteString("## Phases\n\n")
	b.WriteString("| Phase | Status | Duration | Error |\n|---|---|---|---|\n")
	for _, name := range state.PhaseOrder {
		ps := state.Phase(name)
		if ps == nil {
			continue
		}
		duration := "-"
		if ps.DurationSeconds > 0 {
			duration = (time.Duration(ps.DurationSeconds * float64(time.Second))).Round(time.Millisecond).String()
		}
		errText := "-"
		if ps.Error != "" {
			errText = ps.Error
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", name, ps.Status, duration, errText)
	}
	b.WriteString("\n")
}

// writeTelemetry appends per-counter aggregates over every persisted stream.
func (r *Renderer) writeTelemetry(b *strings.Builder) error {
	if r.telemetryDir == "" {
		return nil
	}

	aggregates, err := collector.Summarize(r.telemetryDir, "")
	if err != nil {
		return fmt.Errorf("summarize telemetry: %w", err)
	}
	if len(aggregates) == 0 {
		return nil
	}

	counters := make([]string, 0, len(aggregates))
	for c := range aggregates {
		counters = append(counters, c)
	}
	sort.Strings(counters)

	b.WriteString("## Telemetry\n\n")
	b.WriteString("| Counter | Samples | Avg | Min | Max | P50 | P95 | P99 |\n|---|---|---|---|---|---|---|---|\n")
	for _, counter := range counters {
		a := aggregates[counter]
		fmt.Fprintf(b, "| %s | %d | %s | %s | %s | %s | %s | %s |\n",
			counter, a.Count, num(a.Avg), num(a.Min), num(a.Max), num(a.P50), num(a.P95), num(a.P99))
	}
	b.WriteString("\n")
	return nil
}

// num trims trailing zeros so the table stays readable for integral readings.
func num(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
