// Package tracker advances phase statuses and derives the overall run status.
//
// Every mutation follows the same shape: acquire the cross-process guard,
// read the current state, apply the transition, recompute the overall status,
// write atomically, release. Recomputation happens inside the same locked
// section as the transition so two near-simultaneous updates can never both
// conclude they finished the last phase.
//
// Transitions are monotone: pending → running → {completed | failed}, or
// pending → skipped. A failed phase may re-enter running (that is how resume
// works); a completed or skipped phase is terminal and any further update is
// rejected with ErrIllegalTransition.
package tracker
