// Package pipeline drives the ordered phase list of a benchmark run.
//
// # Why Orchestrator Exists
//
// A full benchmark run takes hours and talks to machines that fail. The
// orchestrator turns that into a checkpointed state machine: before each
// phase it consults the tracker, after each phase it commits the outcome, so
// a crashed or failed run can be resumed and picks up exactly where it
// stopped: already-completed phases are skipped without re-invoking their
// bodies or repeating their side effects.
//
// # Failure Model
//
// A failing phase halts forward progress and propagates its error. There is
// no automatic retry and no rollback: side effects of completed phases stay
// in place, and resume after operator remediation is the only recovery path.
//
// # Relationship with Other Components
//
//   - tracker: owns every state transition; the orchestrator never writes
//     run state directly.
//   - runstate: supplies the durable record the tracker mutates.
//   - collector: invoked by the monitoring phase's body; the orchestrator
//     itself is sequential, fan-out only happens inside that phase.
package pipeline
