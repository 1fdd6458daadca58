package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionWorkerInterval = time.Hour

// RunPruner deletes runs older than a cutoff.
type RunPruner interface {
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartRetentionWorker periodically deletes recorded runs older than
// retention. A non-positive retention keeps everything.
func StartRetentionWorker(ctx context.Context, repo RunPruner, retention time.Duration) {
	if retention <= 0 {
		slog.Info("Retention worker disabled")
		return
	}
	ticker := time.NewTicker(retentionWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", retentionWorkerInterval, "retention", retention)

		pruneRuns(ctx, repo, retention, time.Now())
		for {
			select {
			case now := <-ticker.C:
				pruneRuns(ctx, repo, retention, now)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneRuns(ctx context.Context, repo RunPruner, retention time.Duration, now time.Time) int64 {
	deleted, err := repo.DeleteRunsBefore(ctx, now.Add(-retention))
	if err != nil {
		slog.Error("Retention worker failed to delete old runs", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("Retention worker deleted old runs", "count", deleted)
	}
	return deleted
}
