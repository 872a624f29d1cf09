// Package runstate defines the persisted model of a benchmark run and the
// durable store that owns it.
//
// A run is one end-to-end pipeline execution identified by run_id. Its state
// is a single JSON file at a well-known path inside the state directory; the
// file is the checkpoint that makes a multi-hour run resumable after a crash.
// Writes are atomic (temp file + rename), so a reader can never observe a
// partially written state. Finished or superseded runs are archived into an
// immutable history directory, keyed by run_id.
//
// The store itself performs no locking. Mutators are expected to serialize
// through the cross-process guard in the flock package; the tracker package
// is the only writer in normal operation.
package runstate
