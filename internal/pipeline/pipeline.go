package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
	"github.com/specialistvlad/benchgrid/internal/runstate"
	"github.com/specialistvlad/benchgrid/internal/tracker"
)

// Phase pairs a name with the body executed when the phase runs. Bodies are
// external collaborators (agent procedures, telemetry collection, report
// rendering); the orchestrator only cares whether they return an error.
type Phase struct {
	Name     string
	Optional bool
	Run      func(ctx context.Context) error
}

// Options control one orchestrator invocation.
type Options struct {
	// RunID names the run when creating a fresh one; empty means generated.
	RunID string

	// Resume reuses the current run's id and phase progress instead of
	// creating a fresh run.
	Resume bool

	// Bypass lists optional phases to record as skipped without running.
	Bypass []string

	// Metadata is stored on a freshly created run.
	Metadata map[string]string

	// ResultsDir is recorded on a freshly created run.
	ResultsDir string
}

// Orchestrator executes a fixed ordered phase list against the run state.
type Orchestrator struct {
	store    *runstate.Store
	tracker  *tracker.Tracker
	solution string
	phases   []Phase
}

// New creates an Orchestrator for one solution's phase list.
func New(store *runstate.Store, tr *tracker.Tracker, solution string, phases []Phase) *Orchestrator {
	return &Orchestrator{
		store:    store,
		tracker:  tr,
		solution: solution,
		phases:   phases,
	}
}

// Run executes the pipeline. With Options.Resume it picks up the current
// run's checkpoint; otherwise it creates a fresh run, archiving any stale
// incomplete one. On the first phase failure it halts and returns the error,
// leaving the run resumable.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	logger := ctxlog.FromContext(ctx)

	bypass, err := o.bypassSet(opts.Bypass)
	if err != nil {
		return err
	}

	state, err := o.prepareRun(ctx, opts)
	if err != nil {
		return err
	}
	runID := state.RunID

	logger.Info("🚀 Pipeline starting.",
		"run_id", runID, "solution", o.solution, "phases", len(o.phases), "resume", opts.Resume)

	for _, phase := range o.phases {
		done, err := o.tracker.IsPhaseCompleted(runID, phase.Name)
		if err != nil {
			return err
		}
		if done {
			logger.Info("⏭️ Phase already done, skipping.", "run_id", runID, "phase", phase.Name)
			continue
		}

		if bypass[phase.Name] {
			if err := o.tracker.UpdatePhase(ctx, runID, phase.Name, runstate.PhaseSkipped, tracker.Update{
				Details: map[string]string{"reason": "bypassed by operator"},
			}); err != nil {
				return err
			}
			logger.Info("⏭️ Phase bypassed.", "run_id", runID, "phase", phase.Name)
			continue
		}

		if err := o.runPhase(ctx, runID, phase); err != nil {
			return err
		}
	}

	if err := o.tracker.CompleteRun(ctx, runstate.StatusCompleted); err != nil {
		return err
	}
	logger.Info("🏁 Pipeline finished.", "run_id", runID)
	return nil
}

// runPhase executes one phase body between its running and terminal
// transitions.
func (o *Orchestrator) runPhase(ctx context.Context, runID string, phase Phase) error {
	logger := ctxlog.FromContext(ctx)

	if err := o.tracker.UpdatePhase(ctx, runID, phase.Name, runstate.PhaseRunning, tracker.Update{}); err != nil {
		return err
	}
	logger.Info("▶️ Phase starting.", "run_id", runID, "phase", phase.Name)

	if err := phase.Run(ctx); err != nil {
		logger.Error("Phase failed, halting pipeline.", "run_id", runID, "phase", phase.Name, "error", err)
		if updErr := o.tracker.UpdatePhase(ctx, runID, phase.Name, runstate.PhaseFailed, tracker.Update{
			Error: err.Error(),
		}); updErr != nil {
			return fmt.Errorf("phase %s failed (%w); recording failure also failed: %v", phase.Name, err, updErr)
		}
		return fmt.Errorf("phase %s failed: %w", phase.Name, err)
	}

	if err := o.tracker.UpdatePhase(ctx, runID, phase.Name, runstate.PhaseCompleted, tracker.Update{}); err != nil {
		return err
	}
	logger.Info("✅ Phase completed.", "run_id", runID, "phase", phase.Name)
	return nil
}

// prepareRun resolves the run this invocation operates on.
func (o *Orchestrator) prepareRun(ctx context.Context, opts Options) (*runstate.RunState, error) {
	logger := ctxlog.FromContext(ctx)

	if opts.Resume {
		state, err := o.store.Read()
		switch {
		case err == nil:
			if state.Status == runstate.StatusCompleted || state.Status == runstate.StatusCancelled {
				return nil, fmt.Errorf("cannot resume run %s: already %s", state.RunID, state.Status)
			}
			if err := o.checkResumable(state); err != nil {
				return nil, err
			}
			logger.Info("🔁 Resuming run.", "run_id", state.RunID, "status", state.Status)
			return state, nil
		case errors.Is(err, runstate.ErrNotFound):
			logger.Warn("Resume requested but no current run exists; starting fresh.")
		default:
			return nil, err
		}
	}

	state, err := o.store.Create(ctx, opts.RunID, o.solution, o.phaseNames(), opts.Metadata)
	if err != nil {
		return nil, err
	}
	if opts.ResultsDir != "" {
		state.ResultsDir = opts.ResultsDir
		if err := o.store.WriteAtomic(state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// checkResumable rejects resuming a run whose recorded shape no longer
// matches this orchestrator's phase list.
func (o *Orchestrator) checkResumable(state *runstate.RunState) error {
	if state.Solution != o.solution {
		return fmt.Errorf("cannot resume run %s: it ran solution %q, not %q",
			state.RunID, state.Solution, o.solution)
	}
	names := o.phaseNames()
	if len(names) != len(state.PhaseOrder) {
		return fmt.Errorf("cannot resume run %s: phase list changed", state.RunID)
	}
	for i, name := range names {
		if state.PhaseOrder[i] != name {
			return fmt.Errorf("cannot resume run %s: phase list changed at %q", state.RunID, name)
		}
	}
	return nil
}

// bypassSet validates that only optional phases are bypassed.
func (o *Orchestrator) bypassSet(names []string) (map[string]bool, error) {
	byName := make(map[string]Phase, len(o.phases))
	for _, p := range o.phases {
		byName[p.Name] = p
	}

	set := make(map[string]bool, len(names))
	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: cannot bypass unknown phase %q", runstate.ErrInvalidInput, name)
		}
		if !p.Optional {
			return nil, fmt.Errorf("%w: phase %q is not optional", runstate.ErrInvalidInput, name)
		}
		set[name] = true
	}
	return set, nil
}

// phaseNames returns the configured phase names in order.
func (o *Orchestrator) phaseNames() []string {
	names := make([]string, len(o.phases))
	for i, p := range o.phases {
		names[i] = p.Name
	}
	return names
}
