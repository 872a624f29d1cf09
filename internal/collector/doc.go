// Package collector runs concurrent telemetry collection during the
// monitoring phase of a benchmark run.
//
// A Supervisor owns a registry of active collections. Starting a collection
// spawns one worker goroutine per metric category; each worker owns exactly
// one append-only JSONL output stream, so workers share no mutable state and
// need no locking. On every interval tick a worker samples each target
// through the remote capability; a per-target failure is appended as an error
// record and never aborts the worker or its siblings.
//
// Stopping a collection is a bounded join: workers are signalled, waited on
// for a grace period, and force-reaped past it: a stuck collector can slow
// its own stream but never hang the pipeline. The stop also persists a
// summary record (window, categories, output files) beside the streams.
package collector
