package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/benchgrid/internal/remote"
)

// steadyInvoker returns fixed readings for every target and category.
func steadyInvoker(value float64) remote.Invoker {
	return remote.InvokerFunc(func(ctx context.Context, target, procedure string, args map[string]string) (map[string]any, error) {
		return map[string]any{args["category"] + "_counter": value}, nil
	})
}

// readSamples decodes every line of a stream, failing the test on any
// malformed record.
func readSamples(t *testing.T, path string) []Sample {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var samples []Sample
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var s Sample
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &s), "malformed sample line: %s", scanner.Text())
		samples = append(samples, s)
	}
	require.NoError(t, scanner.Err())
	return samples
}

func TestStartValidation(t *testing.T) {
	s := NewSupervisor(steadyInvoker(1), t.TempDir())
	ctx := context.Background()

	_, err := s.Start(ctx, Spec{Targets: []string{"n1"}, Interval: time.Second})
	require.Error(t, err)

	_, err = s.Start(ctx, Spec{Categories: []string{"cpu"}, Interval: time.Second})
	require.Error(t, err)

	_, err = s.Start(ctx, Spec{Categories: []string{"cpu"}, Targets: []string{"n1"}})
	require.Error(t, err)
}

func TestCollectAndStop(t *testing.T) {
	dir := t.TempDir()
	s := NewSupervisor(steadyInvoker(7.5), dir)
	ctx := context.Background()

	id, err := s.Start(ctx, Spec{
		Categories: []string{"cpu", "memory"},
		Targets:    []string{"n1:9099", "n2:9099"},
		Interval:   10 * time.Millisecond,
		MaxSamples: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, s.Active())

	// Let the workers hit their sample budget.
	time.Sleep(150 * time.Millisecond)

	summary, err := s.Stop(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, s.Active())
	assert.Equal(t, []string{"cpu", "memory"}, summary.Categories)
	assert.Len(t, summary.OutputFiles, 2)
	assert.GreaterOrEqual(t, summary.DurationSeconds, 0.0)
	assert.False(t, summary.EndedAt.Before(summary.StartedAt))

	// Streams: 3 ticks × 2 targets per category.
	for _, category := range []string{"cpu", "memory"} {
		samples := readSamples(t, filepath.Join(dir, category+".jsonl"))
		assert.Len(t, samples, 6, "category %s", category)
		for _, smp := range samples {
			require.NotNil(t, smp.Value)
			assert.Equal(t, 7.5, *smp.Value)
			assert.Equal(t, category+"_counter", smp.Counter)
			assert.Empty(t, smp.Error)
		}
	}

	// The summary record is persisted beside the streams.
	data, err := os.ReadFile(filepath.Join(dir, id+".summary.json"))
	require.NoError(t, err)
	var persisted Summary
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, id, persisted.CollectionID)
}

func TestStopUnknownCollection(t *testing.T) {
	s := NewSupervisor(steadyInvoker(1), t.TempDir())
	_, err := s.Stop(context.Background(), "col-does-not-exist")
	require.ErrorIs(t, err, ErrCollectionNotFound)
}

// TestTargetFailureIsolation keeps one target failing on every sample and
// asserts every other target and category still produces well-formed output.
func TestTargetFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	invoker := remote.InvokerFunc(func(ctx context.Context, target, procedure string, args map[string]string) (map[string]any, error) {
		if target == "bad:9099" {
			return nil, fmt.Errorf("%w: %s", remote.ErrTargetUnreachable, target)
		}
		return map[string]any{"reads": 100.0}, nil
	})
	s := NewSupervisor(invoker, dir)
	ctx := context.Background()

	id, err := s.Start(ctx, Spec{
		Categories: []string{"disk", "network"},
		Targets:    []string{"good1:9099", "bad:9099", "good2:9099"},
		Interval:   10 * time.Millisecond,
		MaxSamples: 2,
	})
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)
	_, err = s.Stop(ctx, id)
	require.NoError(t, err)

	for _, category := range []string{"disk", "network"} {
		samples := readSamples(t, filepath.Join(dir, category+".jsonl"))

		good, bad := 0, 0
		for _, smp := range samples {
			switch smp.Node {
			case "bad:9099":
				bad++
				assert.NotEmpty(t, smp.Error)
				assert.Nil(t, smp.Value, "a sample carries a value XOR an error")
			default:
				good++
				require.NotNil(t, smp.Value)
				assert.Empty(t, smp.Error)
			}
		}
		assert.Equal(t, 4, good, "category %s: 2 ticks × 2 healthy targets", category)
		assert.Equal(t, 2, bad, "category %s: 2 ticks × 1 failing target", category)
	}
}

// TestStuckWorkerIsForceReaped verifies Stop returns within the join bound
// even when a collector blocks inside the sampling capability.
func TestStuckWorkerIsForceReaped(t *testing.T) {
	release := make(chan struct{})
	invoker := remote.InvokerFunc(func(ctx context.Context, target, procedure string, args map[string]string) (map[string]any, error) {
		// Ignores ctx on purpose: simulates a hung remote call.
		<-release
		return map[string]any{}, nil
	})
	s := NewSupervisor(invoker, t.TempDir(), WithJoinTimeout(50*time.Millisecond))
	ctx := context.Background()

	id, err := s.Start(ctx, Spec{
		Categories: []string{"cpu"},
		Targets:    []string{"n1:9099"},
		Interval:   5 * time.Millisecond,
	})
	require.NoError(t, err)

	// Give the worker time to enter the hung call.
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	_, err = s.Stop(ctx, id)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "Stop must not hang on a stuck worker")
	close(release)
}

func TestSplitCounter(t *testing.T) {
	c, i := splitCounter("usage:cpu0")
	assert.Equal(t, "usage", c)
	assert.Equal(t, "cpu0", i)

	c, i = splitCounter("usage")
	assert.Equal(t, "usage", c)
	assert.Empty(t, i)
}
