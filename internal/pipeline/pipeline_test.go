package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/benchgrid/internal/runstate"
	"github.com/specialistvlad/benchgrid/internal/tracker"
)

// recorder builds phase bodies that log their invocations.
type recorder struct {
	calls []string
}

func (r *recorder) phase(name string) Phase {
	return Phase{Name: name, Run: func(ctx context.Context) error {
		r.calls = append(r.calls, name)
		return nil
	}}
}

func (r *recorder) failing(name string, err error) Phase {
	return Phase{Name: name, Run: func(ctx context.Context) error {
		r.calls = append(r.calls, name)
		return err
	}}
}

func newHarness(t *testing.T) (*runstate.Store, *tracker.Tracker) {
	t.Helper()
	store, err := runstate.NewStore(t.TempDir())
	require.NoError(t, err)
	return store, tracker.New(store)
}

func TestRunExecutesAllPhasesInOrder(t *testing.T) {
	store, tr := newHarness(t)
	rec := &recorder{}

	o := New(store, tr, "kafka", []Phase{rec.phase("Install"), rec.phase("Deploy"), rec.phase("Test")})
	require.NoError(t, o.Run(context.Background(), Options{RunID: "run-1"}))

	assert.Equal(t, []string{"Install", "Deploy", "Test"}, rec.calls)

	state, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, runstate.StatusCompleted, state.Status)
	require.NotNil(t, state.CompletedAt)

	// A completed run is archived.
	archived, err := store.ReadHistory("run-1")
	require.NoError(t, err)
	assert.Equal(t, runstate.StatusCompleted, archived.Status)
}

func TestFailureHaltsPipeline(t *testing.T) {
	store, tr := newHarness(t)
	rec := &recorder{}
	boom := errors.New("agent exploded")

	o := New(store, tr, "kafka", []Phase{
		rec.phase("Install"),
		rec.failing("Deploy", boom),
		rec.phase("Test"),
	})
	err := o.Run(context.Background(), Options{RunID: "run-1"})
	require.ErrorIs(t, err, boom)

	// Test's body must never have been invoked.
	assert.Equal(t, []string{"Install", "Deploy"}, rec.calls)

	state, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, runstate.StatusFailed, state.Status)
	assert.Equal(t, runstate.PhaseCompleted, state.Phase("Install").Status)
	assert.Equal(t, runstate.PhaseFailed, state.Phase("Deploy").Status)
	assert.Equal(t, "agent exploded", state.Phase("Deploy").Error)
	assert.Equal(t, runstate.PhasePending, state.Phase("Test").Status)
}

func TestResumeSkipsCompletedPhases(t *testing.T) {
	store, tr := newHarness(t)
	ctx := context.Background()

	// First attempt: PreCheck and Install succeed, Deploy fails.
	first := &recorder{}
	boom := errors.New("deploy timeout")
	o1 := New(store, tr, "kafka", []Phase{
		first.phase("PreCheck"),
		first.phase("Install"),
		first.failing("Deploy", boom),
	})
	require.Error(t, o1.Run(ctx, Options{RunID: "run-1"}))

	// Resume: only Deploy runs again; earlier bodies are not re-invoked.
	second := &recorder{}
	o2 := New(store, tr, "kafka", []Phase{
		second.phase("PreCheck"),
		second.phase("Install"),
		second.phase("Deploy"),
	})
	require.NoError(t, o2.Run(ctx, Options{Resume: true}))

	assert.Equal(t, []string{"Deploy"}, second.calls)

	state, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "run-1", state.RunID, "resume must reuse the run id")
	assert.Equal(t, runstate.StatusFailed, state.Status, "failure is sticky for the run record")
}

func TestResumeWithoutCurrentRunStartsFresh(t *testing.T) {
	store, tr := newHarness(t)
	rec := &recorder{}

	o := New(store, tr, "kafka", []Phase{rec.phase("Install")})
	require.NoError(t, o.Run(context.Background(), Options{Resume: true}))
	assert.Equal(t, []string{"Install"}, rec.calls)
}

func TestResumeRejectsMismatchedPhaseList(t *testing.T) {
	store, tr := newHarness(t)
	ctx := context.Background()

	rec := &recorder{}
	o1 := New(store, tr, "kafka", []Phase{rec.phase("Install"), rec.failing("Deploy", errors.New("x"))})
	require.Error(t, o1.Run(ctx, Options{RunID: "run-1"}))

	o2 := New(store, tr, "kafka", []Phase{rec.phase("Install"), rec.phase("Teardown")})
	err := o2.Run(ctx, Options{Resume: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase list changed")

	o3 := New(store, tr, "redis", []Phase{rec.phase("Install"), rec.phase("Deploy")})
	err = o3.Run(ctx, Options{Resume: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solution")
}

func TestResumeRejectsFinishedRun(t *testing.T) {
	store, tr := newHarness(t)
	ctx := context.Background()
	rec := &recorder{}

	o := New(store, tr, "kafka", []Phase{rec.phase("Install")})
	require.NoError(t, o.Run(ctx, Options{RunID: "run-1"}))

	err := o.Run(ctx, Options{Resume: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already completed")
}

func TestBypassOptionalPhase(t *testing.T) {
	store, tr := newHarness(t)
	rec := &recorder{}

	o := New(store, tr, "kafka", []Phase{
		rec.phase("Install"),
		{Name: "Report", Optional: true, Run: func(ctx context.Context) error {
			rec.calls = append(rec.calls, "Report")
			return nil
		}},
	})
	require.NoError(t, o.Run(context.Background(), Options{RunID: "run-1", Bypass: []string{"Report"}}))

	assert.Equal(t, []string{"Install"}, rec.calls, "bypassed body must not run")

	state, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, runstate.PhaseSkipped, state.Phase("Report").Status)
	assert.Equal(t, runstate.StatusCompleted, state.Status, "skipped counts toward completion")
}

func TestBypassOfPhaseLeftRunningByCrash(t *testing.T) {
	store, tr := newHarness(t)
	ctx := context.Background()

	// Simulate a crashed run: Install finished, the optional Report phase
	// was mid-flight when the process died.
	_, err := store.Create(ctx, "run-1", "kafka", []string{"Install", "Report"}, nil)
	require.NoError(t, err)
	require.NoError(t, tr.UpdatePhase(ctx, "run-1", "Install", runstate.PhaseRunning, tracker.Update{}))
	require.NoError(t, tr.UpdatePhase(ctx, "run-1", "Install", runstate.PhaseCompleted, tracker.Update{}))
	require.NoError(t, tr.UpdatePhase(ctx, "run-1", "Report", runstate.PhaseRunning, tracker.Update{}))

	rec := &recorder{}
	o := New(store, tr, "kafka", []Phase{
		rec.phase("Install"),
		{Name: "Report", Optional: true, Run: func(ctx context.Context) error {
			rec.calls = append(rec.calls, "Report")
			return nil
		}},
	})
	require.NoError(t, o.Run(ctx, Options{Resume: true, Bypass: []string{"Report"}}))

	assert.Empty(t, rec.calls, "neither body may run: Install is done, Report is bypassed")

	state, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, runstate.PhaseSkipped, state.Phase("Report").Status)
	assert.Equal(t, runstate.StatusCompleted, state.Status)
}

func TestBypassValidation(t *testing.T) {
	store, tr := newHarness(t)
	rec := &recorder{}
	ctx := context.Background()

	o := New(store, tr, "kafka", []Phase{rec.phase("Install")})

	err := o.Run(ctx, Options{Bypass: []string{"Install"}})
	require.ErrorIs(t, err, runstate.ErrInvalidInput)

	err = o.Run(ctx, Options{Bypass: []string{"Nope"}})
	require.ErrorIs(t, err, runstate.ErrInvalidInput)
}

func TestFreshRunRecordsResultsDirAndMetadata(t *testing.T) {
	store, tr := newHarness(t)
	rec := &recorder{}

	o := New(store, tr, "kafka", []Phase{rec.phase("Install")})
	require.NoError(t, o.Run(context.Background(), Options{
		RunID:      "run-1",
		Metadata:   map[string]string{"cluster": "perf-lab"},
		ResultsDir: "/tmp/results",
	}))

	archived, err := store.ReadHistory("run-1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/results", archived.ResultsDir)
	assert.Equal(t, "perf-lab", archived.Metadata["cluster"])
}
