package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/specialistvlad/benchgrid/internal/collector"
	"github.com/specialistvlad/benchgrid/internal/ctxlog"
	"github.com/specialistvlad/benchgrid/internal/plan"
	"github.com/specialistvlad/benchgrid/internal/remote"
	"github.com/specialistvlad/benchgrid/internal/runstate"
	"github.com/specialistvlad/benchgrid/internal/tracker"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	plan       *plan.Plan
	store      *runstate.Store
	tracker    *tracker.Tracker
	invoker    remote.Invoker
	supervisor *collector.Supervisor
	httpServer *http.Server
}

// staticCredentials serves one fixed token for every credential name.
type staticCredentials string

// GetCredential implements remote.CredentialSource.
func (s staticCredentials) GetCredential(ctx context.Context, name string) (string, error) {
	return string(s), nil
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, run-state
// store, and telemetry supervisor.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	benchPlan, err := plan.Load(ctx, cfg.PlanPath)
	if err != nil {
		// A failure to load the plan is a fatal startup error.
		panic(fmt.Errorf("failed to load benchmark plan: %w", err))
	}
	logger.Debug("Benchmark plan loaded.", "solution", benchPlan.Solution)

	store, err := runstate.NewStore(cfg.StateDir)
	if err != nil {
		panic(fmt.Errorf("failed to initialize run-state store: %w", err))
	}
	logger.Debug("Run-state store initialized.", "dir", store.Dir())

	var agentOpts []remote.AgentOption
	if cfg.AgentToken != "" {
		agentOpts = append(agentOpts, remote.WithCredentials(staticCredentials(cfg.AgentToken)))
	}
	invoker := remote.NewHTTPAgent(agentOpts...)

	a := &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		plan:    benchPlan,
		store:   store,
		tracker: tracker.New(store),
		invoker: invoker,
	}
	a.supervisor = collector.NewSupervisor(invoker, a.telemetryDir())
	return a
}

// Plan returns the loaded benchmark plan. This is primarily for testing.
func (a *App) Plan() *plan.Plan {
	return a.plan
}

// Store returns the run-state store. This is primarily for testing.
func (a *App) Store() *runstate.Store {
	return a.store
}

// resultsDir resolves the results directory: an explicit config value wins,
// then the plan's results_dir, then a local default.
func (a *App) resultsDir() string {
	if a.config.ResultsDir != "" {
		return a.config.ResultsDir
	}
	if a.plan.ResultsDir != "" {
		return a.plan.ResultsDir
	}
	return "results"
}

// telemetryDir is where collection streams and summaries are written.
func (a *App) telemetryDir() string {
	return filepath.Join(a.resultsDir(), "telemetry")
}
