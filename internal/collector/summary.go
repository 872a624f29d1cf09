package collector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Aggregate holds the per-counter statistics computed by Summarize.
type Aggregate struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Summarize is a pure read over persisted streams in dir. With a category it
// reads that category's stream; with an empty category it reads every stream.
// Error records contribute nothing to the aggregates.
func Summarize(dir, category string) (map[string]Aggregate, error) {
	var paths []string
	if category != "" {
		paths = []string{filepath.Join(dir, category+".jsonl")}
	} else {
		matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
		if err != nil {
			return nil, fmt.Errorf("list streams: %w", err)
		}
		paths = matches
	}

	values := make(map[string][]float64)
	for _, path := range paths {
		if err := readStream(path, values); err != nil {
			return nil, err
		}
	}

	aggregates := make(map[string]Aggregate, len(values))
	for counter, vs := range values {
		aggregates[counter] = aggregate(vs)
	}
	return aggregates, nil
}

// readStream folds one JSONL stream's readings into values, keyed by counter.
func readStream(path string, values map[string][]float64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var s Sample
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return fmt.Errorf("malformed sample at %s:%d: %w", path, line, err)
		}
		if s.Error != "" || s.Value == nil {
			continue
		}
		values[s.Counter] = append(values[s.Counter], *s.Value)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream %s: %w", path, err)
	}
	return nil
}

// aggregate computes the statistics for one counter's readings.
func aggregate(vs []float64) Aggregate {
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	n := len(sorted)
	return Aggregate{
		Count: n,
		Avg:   sum / float64(n),
		Min:   sorted[0],
		Max:   sorted[n-1],
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
	}
}

// percentile selects by nearest rank: index = clamp(ceil(p/100*n)−1, 0, n−1)
// over the ascending-sorted values.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
