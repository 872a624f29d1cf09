package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
	"github.com/specialistvlad/benchgrid/internal/pipeline"
)

// Run executes the benchmark pipeline described by the loaded plan.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx)
		defer func() {
			if err := a.closeHealthcheckServer(ctx); err != nil {
				a.logger.Warn("Health check server did not shut down cleanly.", "error", err)
			}
		}()
	}

	orchestrator := pipeline.New(a.store, a.tracker, a.plan.Solution, a.buildPhases())
	err := orchestrator.Run(ctx, pipeline.Options{
		RunID:      a.config.RunID,
		Resume:     a.config.Resume,
		Bypass:     a.config.Bypass,
		Metadata:   a.plan.Metadata,
		ResultsDir: a.resultsDir(),
	})
	if err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}
