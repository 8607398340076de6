// Package progress implements the optional periodic partial-submission
// reporter (spec §4.5): while a batch is in progress, post its
// completed ply results on a timer, discarding the reply.
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/fishnet-client/fishnet/internal/domain"
)

// Reporter posts best-effort partial results for in-flight batches on a
// fixed interval. The server treats these as advisory: the client never
// waits for them to complete before shutdown (spec §4.5).
type Reporter struct {
	client   domain.CoordinatorClient
	interval time.Duration
}

// New builds a Reporter. It is a no-op when interval <= 0.
func New(client domain.CoordinatorClient, interval time.Duration) *Reporter {
	return &Reporter{client: client, interval: interval}
}

// Track starts reporting progress for one batch and stops when either
// ctx is cancelled or the returned stop function is called (the worker
// calls stop once the batch finishes, successfully or not).
func (r *Reporter) Track(ctx context.Context, batch *domain.Batch) (stop func()) {
	if r.interval <= 0 {
		return func() {}
	}
	trackCtx, cancel := context.WithCancel(ctx)
	go r.loop(trackCtx, batch)
	return cancel
}

func (r *Reporter) loop(ctx context.Context, batch *domain.Batch) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.reportOnce(ctx, batch)
		case <-ctx.Done():
			return
		}
	}
}

// reportOnce posts the batch's current result slots (pending slots
// serialize as the wire protocol's empty-object sentinel). Any reply is
// discarded except a fatal classification, which is logged but not
// otherwise acted upon: the worker owning this batch is the authority
// on whether to keep going.
func (r *Reporter) reportOnce(ctx context.Context, batch *domain.Batch) {
	if batch.Job.Kind != domain.KindAnalysis {
		return // progress reports are an Analysis-only feature (spec §4.5)
	}
	snapshot, _, _ := batch.Snapshot()
	_, err := r.client.SubmitAnalysis(ctx, batch.Job.WorkID, snapshot, false, "")
	if err != nil {
		slog.Debug("progress report failed, will retry next tick",
			slog.String("work_id", batch.Job.WorkID), slog.Any("error", err))
	}
}
