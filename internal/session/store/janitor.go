package store

import (
	"context"
	"log/slog"
	"time"

	"gatepass/internal/platform/metrics"
)

// Sweeper reclaims idle sessions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RunJanitor sweeps every interval until ctx is done. It always returns nil
// so it can run inside the process errgroup.
func RunJanitor(ctx context.Context, sweeper Sweeper, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := sweeper.Sweep(ctx)
			if err != nil {
				logger.WarnContext(ctx, "session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				m.AddSessionsExpired(removed)
				logger.DebugContext(ctx, "idle sessions expired", "count", removed)
			}
		}
	}
}
