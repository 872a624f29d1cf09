package remote

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
)

// ProcedurePing is the agent liveness probe used by the pre-flight check.
const ProcedurePing = "agent.ping"

// Preflight probes every target concurrently. Any unreachable node fails the
// whole check. This runs before the run mutates anything, so unlike
// collection-time sampling there is no error to downgrade, only a run to
// abort. The first failure cancels the remaining probes.
func Preflight(ctx context.Context, invoker Invoker, targets []string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("🔍 Pre-flight connectivity check.", "targets", len(targets))

	g, ctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			if _, err := invoker.Invoke(ctx, target, ProcedurePing, nil); err != nil {
				return fmt.Errorf("pre-flight check failed for %s: %w", target, err)
			}
			logger.Debug("Target reachable.", "target", target)
			return nil
		})
	}
	return g.Wait()
}
