package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
	"github.com/specialistvlad/benchgrid/internal/flock"
	"github.com/specialistvlad/benchgrid/internal/runstate"
)

// Sentinel errors returned by tracker operations.
var (
	// ErrRunNotFound is returned when the current run does not match the
	// run the caller is referring to.
	ErrRunNotFound = errors.New("run not found")

	// ErrPhaseNotFound is returned for a phase name the run does not contain.
	ErrPhaseNotFound = errors.New("phase not found")

	// ErrIllegalTransition is returned when an update would regress a phase
	// that already reached a terminal status.
	ErrIllegalTransition = errors.New("illegal phase transition")
)

// defaultFailureMessage is recorded when a phase fails without a message.
const defaultFailureMessage = "phase execution failed"

// Tracker serializes run-state mutations through the cross-process guard.
type Tracker struct {
	store       *runstate.Store
	lock        *flock.FileLock
	lockTimeout time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLockTimeout overrides the guard acquisition timeout (default 30s).
func WithLockTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		t.lockTimeout = d
	}
}

// New creates a Tracker over the given store. The guard is the store's
// lock file, so every process mutating the same state directory contends
// on the same lock.
func New(store *runstate.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:       store,
		lock:        flock.New(store.LockPath()),
		lockTimeout: flock.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update carries the optional parts of a phase transition.
type Update struct {
	// Details is free-form context merged into the phase's details map.
	Details map[string]string

	// Error is the failure message recorded on a failed transition. When
	// empty, a generic message is used.
	Error string
}

// UpdatePhase transitions the named phase of the given run to newStatus and
// recomputes the overall run status, all within one locked read-modify-write.
func (t *Tracker) UpdatePhase(ctx context.Context, runID, phase string, newStatus runstate.PhaseStatus, upd Update) error {
	logger := ctxlog.FromContext(ctx)

	if err := t.lock.Acquire(ctx, t.lockTimeout); err != nil {
		return fmt.Errorf("acquire state guard: %w", err)
	}
	defer func() { _ = t.lock.Release() }()

	state, err := t.store.Read()
	if err != nil {
		if errors.Is(err, runstate.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return err
	}
	if state.RunID != runID {
		return fmt.Errorf("%w: %s (current run is %s)", ErrRunNotFound, runID, state.RunID)
	}

	ps := state.Phase(phase)
	if ps == nil {
		return fmt.Errorf("%w: %q in run %s", ErrPhaseNotFound, phase, runID)
	}

	if !canTransition(ps.Status, newStatus) {
		return fmt.Errorf("%w: %s → %s for phase %q", ErrIllegalTransition, ps.Status, newStatus, phase)
	}

	now := time.Now().UTC()
	applyTransition(state, ps, newStatus, upd, now)
	recomputeOverall(state, newStatus, now)

	if err := t.store.WriteAtomic(state); err != nil {
		return err
	}

	logger.Debug("Phase transition committed.",
		"run_id", runID, "phase", phase, "phase_status", newStatus, "run_status", state.Status)
	return nil
}

// canTransition encodes the monotone phase lifecycle.
func canTransition(from, to runstate.PhaseStatus) bool {
	switch from {
	case runstate.PhasePending:
		return to == runstate.PhaseRunning || to == runstate.PhaseSkipped
	case runstate.PhaseRunning:
		// running → running is a restart after a crash mid-phase; running →
		// skipped lets an operator bypass an optional phase a crash left behind.
		return to == runstate.PhaseRunning || to == runstate.PhaseCompleted ||
			to == runstate.PhaseFailed || to == runstate.PhaseSkipped
	case runstate.PhaseFailed:
		// A failed phase may be re-run after operator remediation.
		return to == runstate.PhaseRunning
	default:
		// completed and skipped are terminal.
		return false
	}
}

// applyTransition mutates the phase record for the accepted transition.
func applyTransition(state *runstate.RunState, ps *runstate.PhaseState, newStatus runstate.PhaseStatus, upd Update, now time.Time) {
	switch newStatus {
	case runstate.PhaseRunning:
		ps.StartedAt = &now
		ps.CompletedAt = nil
		ps.DurationSeconds = 0
		ps.Error = ""
		if state.StartedAt == nil {
			state.StartedAt = &now
		}

	case runstate.PhaseCompleted:
		ps.CompletedAt = &now
		ps.DurationSeconds = phaseDuration(ps, now)

	case runstate.PhaseFailed:
		ps.CompletedAt = &now
		ps.DurationSeconds = phaseDuration(ps, now)
		ps.Error = upd.Error
		if ps.Error == "" {
			ps.Error = defaultFailureMessage
		}

	case runstate.PhaseSkipped:
		// Counts toward completion, records no timing.
	}

	ps.Status = newStatus

	if len(upd.Details) > 0 {
		if ps.Details == nil {
			ps.Details = make(map[string]string, len(upd.Details))
		}
		for k, v := range upd.Details {
			ps.Details[k] = v
		}
	}
}

// phaseDuration derives the phase duration in seconds; 0 without a start mark.
func phaseDuration(ps *runstate.PhaseState, now time.Time) float64 {
	if ps.StartedAt == nil {
		return 0
	}
	return now.Sub(*ps.StartedAt).Seconds()
}

// recomputeOverall derives the run status from the phase states. Failure is
// sticky: once the run is failed, later phase completions never clear it.
func recomputeOverall(state *runstate.RunState, newStatus runstate.PhaseStatus, now time.Time) {
	switch {
	case state.Status == runstate.StatusFailed:
		// Sticky.
	case newStatus == runstate.PhaseFailed:
		state.Status = runstate.StatusFailed
	case state.AllPhasesDone():
		state.Status = runstate.StatusCompleted
		if state.CompletedAt == nil {
			state.CompletedAt = &now
		}
	case newStatus == runstate.PhaseRunning:
		state.Status = runstate.StatusInProgress
	}
}

// IsPhaseCompleted reports whether the phase already counts as done
// (completed or skipped). It is a plain read: resume decisions are made by a
// single orchestrator instance, so no lock is required.
func (t *Tracker) IsPhaseCompleted(runID, phase string) (bool, error) {
	state, err := t.store.Read()
	if err != nil {
		if errors.Is(err, runstate.ErrNotFound) {
			return false, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return false, err
	}
	if state.RunID != runID {
		return false, fmt.Errorf("%w: %s (current run is %s)", ErrRunNotFound, runID, state.RunID)
	}
	ps := state.Phase(phase)
	if ps == nil {
		return false, fmt.Errorf("%w: %q in run %s", ErrPhaseNotFound, phase, runID)
	}
	return ps.Status.Done(), nil
}

// CompleteRun force-sets the run's terminal status and archives the run.
// If the run is already terminal the status is left as-is and only the
// archive is (idempotently) ensured.
func (t *Tracker) CompleteRun(ctx context.Context, status runstate.Status) error {
	logger := ctxlog.FromContext(ctx)

	if !status.IsTerminal() {
		return fmt.Errorf("%w: %q is not a terminal run status", runstate.ErrInvalidInput, status)
	}

	if err := t.lock.Acquire(ctx, t.lockTimeout); err != nil {
		return fmt.Errorf("acquire state guard: %w", err)
	}
	defer func() { _ = t.lock.Release() }()

	state, err := t.store.Read()
	if err != nil {
		if errors.Is(err, runstate.ErrNotFound) {
			return fmt.Errorf("%w: no current run", ErrRunNotFound)
		}
		return err
	}

	if !state.Status.IsTerminal() {
		now := time.Now().UTC()
		state.Status = status
		if state.CompletedAt == nil {
			state.CompletedAt = &now
		}
		if err := t.store.WriteAtomic(state); err != nil {
			return err
		}
		logger.Info("🏁 Run finalized.", "run_id", state.RunID, "status", status)
	}

	return t.store.Archive(ctx, state)
}
