package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
)

const (
	stateFileName  = "current-run.json"
	lockFileName   = "state.lock"
	historyDirName = "history"
)

// Sentinel errors returned by store operations.
var (
	// ErrNotFound is returned by Read when no current run exists.
	ErrNotFound = errors.New("no current run state found")

	// ErrInvalidInput is returned when a caller supplies unusable arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoPhases is returned by Create when the phase list is empty.
	ErrNoPhases = fmt.Errorf("%w: phase list is empty", ErrInvalidInput)
)

// Store persists run state in a state directory. Exactly one file represents
// the current run at any time; superseded and finished runs live in the
// history subdirectory, one immutable snapshot per run_id.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating the directory and its
// history subdirectory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, historyDirName), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// LockPath returns the path of the lock file guarding this store's state.
// All mutators must hold the flock on this path.
func (s *Store) LockPath() string {
	return filepath.Join(s.dir, lockFileName)
}

// statePath returns the canonical current-run file path.
func (s *Store) statePath() string {
	return filepath.Join(s.dir, stateFileName)
}

// historyPath returns the history snapshot path for a run.
func (s *Store) historyPath(runID string) string {
	return filepath.Join(s.dir, historyDirName, runID+".json")
}

// Create starts a new run record. If a current run exists and is not
// completed or cancelled, it is archived to history first with a warning;
// a stale in-progress run is evidence of an earlier crash, not a fatal
// condition. An empty runID gets a generated one.
func (s *Store) Create(ctx context.Context, runID, solution string, phases []string, metadata map[string]string) (*RunState, error) {
	logger := ctxlog.FromContext(ctx)

	if len(phases) == 0 {
		return nil, ErrNoPhases
	}
	if runID == "" {
		runID = NewRunID()
	}

	if prev, err := s.Read(); err == nil {
		if prev.Status != StatusCompleted && prev.Status != StatusCancelled {
			logger.Warn("Archiving incomplete run before creating a new one.",
				"run_id", prev.RunID, "status", prev.Status)
		}
		if err := s.Archive(ctx, prev); err != nil {
			logger.Warn("Failed to archive previous run.", "run_id", prev.RunID, "error", err)
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("read previous run state: %w", err)
	}

	state := &RunState{
		RunID:      runID,
		Solution:   solution,
		Status:     StatusCreated,
		CreatedAt:  time.Now().UTC(),
		PhaseOrder: make([]string, 0, len(phases)),
		Phases:     make(map[string]*PhaseState, len(phases)),
		Metadata:   metadata,
	}
	for _, name := range phases {
		if _, dup := state.Phases[name]; dup {
			return nil, fmt.Errorf("%w: duplicate phase %q", ErrInvalidInput, name)
		}
		state.PhaseOrder = append(state.PhaseOrder, name)
		state.Phases[name] = &PhaseState{Status: PhasePending}
	}

	if err := s.WriteAtomic(state); err != nil {
		return nil, err
	}
	logger.Info("🆕 Run state created.", "run_id", runID, "solution", solution, "phases", len(phases))
	return state, nil
}

// Read returns the current run state, or ErrNotFound if none exists.
func (s *Store) Read() (*RunState, error) {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal run state: %w", err)
	}
	if state.Phases == nil {
		state.Phases = make(map[string]*PhaseState)
	}
	return &state, nil
}

// WriteAtomic persists the state. Data is written to a temporary file first,
// then renamed into place, so a concurrent reader only ever observes the last
// fully committed snapshot.
func (s *Store) WriteAtomic(state *RunState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	// Each write gets its own temp file so concurrent committers can never
	// interleave bytes before the rename.
	tmp, err := os.CreateTemp(s.dir, stateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	// CreateTemp defaults to 0600; match the rest of the state directory.
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.statePath()); err != nil {
		_ = os.Remove(tmp.Name()) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Archive copies the given state into history, keyed by run_id. History
// entries are immutable: if a snapshot for the run already exists the call
// is a no-op, so the first write wins.
func (s *Store) Archive(ctx context.Context, state *RunState) error {
	logger := ctxlog.FromContext(ctx)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	f, err := os.OpenFile(s.historyPath(state.RunID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			logger.Debug("History snapshot already exists, leaving it untouched.", "run_id", state.RunID)
			return nil
		}
		return fmt.Errorf("create history snapshot: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write history snapshot: %w", err)
	}
	logger.Debug("Run archived to history.", "run_id", state.RunID, "status", state.Status)
	return nil
}

// ReadHistory returns the archived snapshot for a run, or ErrNotFound.
func (s *Store) ReadHistory(runID string) (*RunState, error) {
	data, err := os.ReadFile(s.historyPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read history snapshot: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal history snapshot: %w", err)
	}
	return &state, nil
}
