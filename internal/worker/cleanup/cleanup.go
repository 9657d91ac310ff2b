// Package cleanup periodically removes expired tokens from the token store.
package cleanup

import (
	"context"
	"time"

	"github.com/redmonkez12/blog-api/internal/logging"
)

// Pruner deletes expired tokens and reports how many were removed
type Pruner interface {
	PruneExpiredTokens(ctx context.Context) (int64, error)
}

// Job runs Pruner on a fixed interval
type Job struct {
	pruner   Pruner
	logger   *logging.Logger
	interval time.Duration
}

func NewJob(pruner Pruner, logger *logging.Logger, interval time.Duration) *Job {
	return &Job{pruner: pruner, logger: logger, interval: interval}
}

// RunOnce prunes a single time. A failed run is logged and retried on the next tick.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()

	n, err := j.pruner.PruneExpiredTokens(ctx)
	if err != nil {
		j.logger.Error("token cleanup failed", "error", err)
		return 0, err
	}

	j.logger.Info("token cleanup completed",
		"deleted_count", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// Start prunes immediately and then on every tick until ctx is cancelled
func (j *Job) Start(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Warn("token cleanup disabled", "interval", j.interval)
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	_, _ = j.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("token cleanup stopped")
			return
		case <-ticker.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}
