package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
	"github.com/specialistvlad/benchgrid/internal/remote"
)

// ErrCollectionNotFound is returned for a collection id the supervisor
// does not own.
var ErrCollectionNotFound = errors.New("collection not found")

// DefaultJoinTimeout bounds how long Stop waits for workers to drain.
const DefaultJoinTimeout = 10 * time.Second

// Spec describes one collection request.
type Spec struct {
	// Categories to collect, one worker each (e.g. "cpu", "memory", "disk").
	Categories []string

	// Targets sampled by every worker on each tick.
	Targets []string

	// Interval between sampling ticks.
	Interval time.Duration

	// Duration bounds the collection; 0 means run until Stop.
	Duration time.Duration

	// MaxSamples bounds the number of ticks per worker; 0 means unbounded.
	MaxSamples int
}

// Supervisor manages independent, concurrently running collections. The
// registry of active collections is owned by the instance, so isolated
// supervisors can coexist (one per test, one per app).
type Supervisor struct {
	invoker     remote.Invoker
	outDir      string
	joinTimeout time.Duration

	mu          sync.Mutex
	collections map[string]*collection
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithJoinTimeout overrides the bounded wait used by Stop.
func WithJoinTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.joinTimeout = d
	}
}

// NewSupervisor creates a Supervisor writing streams into outDir, sampling
// through the given invoker.
func NewSupervisor(invoker remote.Invoker, outDir string, opts ...Option) *Supervisor {
	s := &Supervisor{
		invoker:     invoker,
		outDir:      outDir,
		joinTimeout: DefaultJoinTimeout,
		collections: make(map[string]*collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// collection tracks one running fan-out of category workers.
type collection struct {
	id        string
	spec      Spec
	startedAt time.Time
	cancel    context.CancelFunc
	workers   []*worker
	files     []string
}

// Start validates the spec, registers a new collection, and spawns one
// worker per category. It returns the collection id used to stop it later.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (string, error) {
	logger := ctxlog.FromContext(ctx)

	if len(spec.Categories) == 0 {
		return "", fmt.Errorf("collection spec: no categories")
	}
	if len(spec.Targets) == 0 {
		return "", fmt.Errorf("collection spec: no targets")
	}
	if spec.Interval <= 0 {
		return "", fmt.Errorf("collection spec: interval must be positive")
	}
	if err := os.MkdirAll(s.outDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	// Open every stream before spawning anything, so a failure leaves no
	// half-started collection behind.
	streams := make([]*os.File, 0, len(spec.Categories))
	files := make([]string, 0, len(spec.Categories))
	for _, category := range spec.Categories {
		path := filepath.Join(s.outDir, category+".jsonl")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			for _, open := range streams {
				_ = open.Close()
			}
			return "", fmt.Errorf("open output stream for %s: %w", category, err)
		}
		streams = append(streams, f)
		files = append(files, path)
	}

	// Workers outlive the Start call; their lifetime is bound to the
	// collection, not to the caller's context.
	workerCtx := ctxlog.WithLogger(context.Background(), logger)
	var cancel context.CancelFunc
	if spec.Duration > 0 {
		workerCtx, cancel = context.WithTimeout(workerCtx, spec.Duration)
	} else {
		workerCtx, cancel = context.WithCancel(workerCtx)
	}

	col := &collection{
		id:        "col-" + uuid.NewString(),
		spec:      spec,
		startedAt: time.Now().UTC(),
		cancel:    cancel,
		files:     files,
	}

	for i, category := range spec.Categories {
		w := &worker{
			category: category,
			targets:  spec.Targets,
			invoker:  s.invoker,
			out:      streams[i],
			done:     make(chan struct{}),
		}
		col.workers = append(col.workers, w)
		go w.run(workerCtx, spec.Interval, spec.MaxSamples)
	}

	s.mu.Lock()
	s.collections[col.id] = col
	s.mu.Unlock()

	logger.Info("📡 Telemetry collection started.",
		"collection_id", col.id,
		"categories", spec.Categories,
		"targets", len(spec.Targets),
		"interval", spec.Interval)
	return col.id, nil
}

// Stop signals the collection's workers, waits up to the join timeout for a
// graceful drain, force-reaps any worker exceeding it, persists the
// collection summary, and removes the registry entry.
func (s *Supervisor) Stop(ctx context.Context, collectionID string) (*Summary, error) {
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	col, ok := s.collections[collectionID]
	if ok {
		delete(s.collections, collectionID)
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionID)
	}

	col.cancel()

	// Bounded join: a slow or stuck collector must never block its siblings
	// or the pipeline, so the deadline is shared across all workers.
	deadline := time.After(s.joinTimeout)
	for _, w := range col.workers {
		select {
		case <-w.done:
		case <-deadline:
			logger.Warn("Force-reaping collector worker past the join timeout.",
				"collection_id", collectionID, "category", w.category)
		}
	}

	endedAt := time.Now().UTC()
	summary := &Summary{
		CollectionID:    col.id,
		StartedAt:       col.startedAt,
		EndedAt:         endedAt,
		DurationSeconds: endedAt.Sub(col.startedAt).Seconds(),
		Categories:      col.spec.Categories,
		OutputFiles:     col.files,
	}
	if err := s.writeSummary(summary); err != nil {
		return nil, err
	}

	logger.Info("📡 Telemetry collection stopped.",
		"collection_id", col.id, "duration_seconds", summary.DurationSeconds)
	return summary, nil
}

// writeSummary persists the collection summary beside the streams.
func (s *Supervisor) writeSummary(summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal collection summary: %w", err)
	}
	path := filepath.Join(s.outDir, summary.CollectionID+".summary.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write collection summary: %w", err)
	}
	return nil
}

// Active returns the ids of collections that have been started and not stopped.
func (s *Supervisor) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.collections))
	for id := range s.collections {
		ids = append(ids, id)
	}
	return ids
}
