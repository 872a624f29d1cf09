// Package report renders a human-facing markdown summary of a finished (or
// failed) benchmark run: run identity and timing, per-phase outcomes, and
// per-counter telemetry aggregates. The rendered file lands in the run's
// results directory next to the raw telemetry streams.
package report
