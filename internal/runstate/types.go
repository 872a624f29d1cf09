package runstate

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the overall state of a run. It is a pure function of the
// phase states, recomputed after every phase transition.
type Status string

const (
	// StatusCreated indicates the run exists but no phase has started.
	StatusCreated Status = "created"

	// StatusInProgress indicates at least one phase has started running.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates every phase is completed or skipped.
	StatusCompleted Status = "completed"

	// StatusFailed indicates a phase failed. Failure is sticky: later phase
	// completions in the same run never clear it.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the run was cancelled by the operator.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the run status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// PhaseStatus represents the state of a single named phase within a run.
type PhaseStatus string

const (
	// PhasePending indicates the phase has not started.
	PhasePending PhaseStatus = "pending"

	// PhaseRunning indicates the phase body is executing.
	PhaseRunning PhaseStatus = "running"

	// PhaseCompleted indicates the phase finished successfully.
	PhaseCompleted PhaseStatus = "completed"

	// PhaseFailed indicates the phase body returned an error.
	PhaseFailed PhaseStatus = "failed"

	// PhaseSkipped indicates the phase was bypassed. It counts toward the
	// "all phases done" check but records no timing.
	PhaseSkipped PhaseStatus = "skipped"
)

// String returns the string representation of the phase status.
func (s PhaseStatus) String() string {
	return string(s)
}

// Done returns true if the phase counts toward run completion.
func (s PhaseStatus) Done() bool {
	return s == PhaseCompleted || s == PhaseSkipped
}

// PhaseState holds the checkpoint data for one phase of a run.
type PhaseState struct {
	Status          PhaseStatus       `json:"status"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// RunState is the full persisted state of a single benchmark run.
//
// Phases is keyed by phase name; PhaseOrder preserves insertion order, which
// is also execution order (JSON objects carry no ordering of their own).
type RunState struct {
	RunID       string                 `json:"run_id"`
	Solution    string                 `json:"solution"`
	Status      Status                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	PhaseOrder  []string               `json:"phase_order"`
	Phases      map[string]*PhaseState `json:"phases"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
	ResultsDir  string                 `json:"results_dir,omitempty"`
}

// Phase returns the state of the named phase, or nil if the run has no such phase.
func (rs *RunState) Phase(name string) *PhaseState {
	return rs.Phases[name]
}

// AllPhasesDone returns true when every phase is completed or skipped.
func (rs *RunState) AllPhasesDone() bool {
	for _, name := range rs.PhaseOrder {
		if ps, ok := rs.Phases[name]; !ok || !ps.Status.Done() {
			return false
		}
	}
	return true
}

// NewRunID generates a unique run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()
}
