package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/fishnet-client/fishnet/internal/observability"
)

// runStatsFile periodically writes a best-effort JSON snapshot of the
// run's counters to path, for operators without a Prometheus scraper
// (SPEC_FULL.md §7's supplemented stats-file feature). It returns once
// ctx is cancelled, after writing one final snapshot.
func runStatsFile(ctx context.Context, path string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		writeStatsSnapshot(path)
		select {
		case <-ctx.Done():
			writeStatsSnapshot(path)
			return
		case <-ticker.C:
		}
	}
}

func writeStatsSnapshot(path string) {
	snap := observability.TakeSnapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		slog.Warn("stats file: marshal failed", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("stats file: write failed", slog.String("path", path), slog.Any("error", err))
	}
}
