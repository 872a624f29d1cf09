package collector

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
	"github.com/specialistvlad/benchgrid/internal/remote"
)

// ProcedureSample is the agent procedure that returns counter readings for
// one category. The result maps counter names to numeric values; a key may
// carry an instance qualifier as "counter:instance" (e.g. "usage:cpu0").
const ProcedureSample = "metrics.sample"

// worker collects one category. It is the sole writer of its output file.
type worker struct {
	category string
	targets  []string
	invoker  remote.Invoker
	out      *os.File
	done     chan struct{}
}

// run loops until the context is cancelled or maxSamples ticks have fired.
func (w *worker) run(ctx context.Context, interval time.Duration, maxSamples int) {
	logger := ctxlog.FromContext(ctx).With("category", w.category)
	defer close(w.done)
	defer func() { _ = w.out.Close() }()

	logger.Debug("Collector worker started.", "targets", len(w.targets))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Collector worker stopping.", "reason", ctx.Err(), "ticks", ticks)
			return
		case ts := <-ticker.C:
			w.sampleAll(ctx, ts.UTC())
			ticks++
			if maxSamples > 0 && ticks >= maxSamples {
				logger.Debug("Collector worker reached sample budget.", "ticks", ticks)
				return
			}
		}
	}
}

// sampleAll queries every target once. Failure isolation is per target: an
// unreachable node becomes an error record, and the loop moves on.
func (w *worker) sampleAll(ctx context.Context, ts time.Time) {
	logger := ctxlog.FromContext(ctx).With("category", w.category)

	for _, target := range w.targets {
		if ctx.Err() != nil {
			return
		}

		result, err := w.invoker.Invoke(ctx, target, ProcedureSample, map[string]string{
			"category": w.category,
		})
		if err != nil {
			w.append(Sample{Timestamp: ts, Node: target, Error: err.Error()})
			logger.Debug("Target sample failed, recorded as error sample.", "node", target, "error", err)
			continue
		}

		for key, raw := range result {
			value, ok := numeric(raw)
			if !ok {
				continue
			}
			counter, instance := splitCounter(key)
			v := value
			w.append(Sample{
				Timestamp: ts,
				Node:      target,
				Counter:   counter,
				Instance:  instance,
				Value:     &v,
			})
		}
	}
}

// append writes one JSONL record. The worker owns the file exclusively, so
// no locking is needed; the stream is only ever extended.
func (w *worker) append(s Sample) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	_, _ = w.out.Write(append(data, '\n'))
}

// splitCounter separates an optional instance qualifier from a counter key.
func splitCounter(key string) (counter, instance string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// numeric coerces the JSON-decoded value types agents may return.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
