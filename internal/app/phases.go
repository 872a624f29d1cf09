package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/benchgrid/internal/collector"
	"github.com/specialistvlad/benchgrid/internal/ctxlog"
	"github.com/specialistvlad/benchgrid/internal/pipeline"
	"github.com/specialistvlad/benchgrid/internal/plan"
	"github.com/specialistvlad/benchgrid/internal/remote"
	"github.com/specialistvlad/benchgrid/internal/report"
)

// buildPhases translates the plan's phase list into executable pipeline
// phases, binding each kind to its built-in behavior.
func (a *App) buildPhases() []pipeline.Phase {
	phases := make([]pipeline.Phase, 0, len(a.plan.Phases))
	for _, ph := range a.plan.Phases {
		phases = append(phases, pipeline.Phase{
			Name:     ph.Name,
			Optional: ph.Optional,
			Run:      a.phaseBody(ph),
		})
	}
	return phases
}

func (a *App) phaseBody(ph *plan.Phase) func(context.Context) error {
	switch ph.Kind {
	case plan.KindPreflight:
		return func(ctx context.Context) error {
			return remote.Preflight(ctx, a.invoker, a.plan.TargetAddrs())
		}
	case plan.KindMonitor:
		return a.monitorBody()
	case plan.KindReport:
		return a.reportBody()
	default:
		return a.remoteBody(ph)
	}
}

// remoteBody runs each of the phase's procedures on every target. Procedures
// execute in declared order; within one procedure all targets run
// concurrently, and the first failure cancels the rest.
func (a *App) remoteBody(ph *plan.Phase) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, procedure := range ph.Procedures {
			g, gctx := errgroup.WithContext(ctx)
			for _, target := range a.plan.TargetAddrs() {
				g.Go(func() error {
					if _, err := a.invoker.Invoke(gctx, target, procedure, ph.Args); err != nil {
						return fmt.Errorf("procedure %s on %s: %w", procedure, target, err)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}
		return nil
	}
}

// monitorBody starts telemetry collection across all categories, waits for
// the monitoring window plus the grace buffer, then joins every worker.
func (a *App) monitorBody() func(context.Context) error {
	return func(ctx context.Context) error {
		logger := ctxlog.FromContext(ctx)
		mon := a.plan.Monitor

		id, err := a.supervisor.Start(ctx, collector.Spec{
			Categories: mon.Categories,
			Targets:    a.plan.TargetAddrs(),
			Interval:   mon.Interval,
			Duration:   mon.Duration,
			MaxSamples: mon.MaxSamples,
		})
		if err != nil {
			return err
		}

		if window := mon.Duration + mon.Grace; window > 0 {
			logger.Info("⏱️ Monitoring window open.", "collection_id", id, "window", window)
			select {
			case <-time.After(window):
			case <-ctx.Done():
			}
		}

		// Stop regardless of cancellation so workers are always joined and
		// the summary is persisted.
		if _, err := a.supervisor.Stop(ctx, id); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// reportBody renders the markdown report from the current run record and the
// telemetry persisted so far.
func (a *App) reportBody() func(context.Context) error {
	return func(ctx context.Context) error {
		state, err := a.store.Read()
		if err != nil {
			return fmt.Errorf("read run state for report: %w", err)
		}
		_, err = report.New(a.telemetryDir()).Write(ctx, state, a.resultsDir())
		return err
	}
}
