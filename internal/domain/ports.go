package domain

import "context"

// CoordinatorClient is the port the coordinator loop and progress
// reporter depend on, implemented by internal/adapter/api.Client. Ports
// live in domain the same way the teacher's AIClient/TextExtractor
// interfaces do, so callers depend on behavior, not transport.
type CoordinatorClient interface {
	Acquire(ctx context.Context, slow, stop bool, flavor Flavor) (AcquireResult, error)
	SubmitAnalysis(ctx context.Context, workID string, results []PlyResult, stop bool, flavor Flavor) (AcquireResult, error)
	SubmitMove(ctx context.Context, workID, bestMove string, stop bool) (AcquireResult, error)
	Abort(ctx context.Context, workID string) error
	Status(ctx context.Context) (QueueStatus, bool, error)
	CheckKey(ctx context.Context, key string) (bool, error)
}

// AcquireResult is the outcome of an acquire or combined submit+acquire
// call: either a new Job, or "no work" (HTTP 204).
type AcquireResult struct {
	Job    *Job
	NoWork bool
}
