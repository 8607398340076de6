// Package queue is the in-process staging area between the coordinator
// and the worker pool (spec §4.3): it buffers up to `cores` offered jobs
// and up to `cores` finished batches waiting to be picked up by the
// coordinator. The coordinator itself keeps acquired_jobs -
// submitted_results <= cores by counting its in-flight work ids.
package queue

import (
	"context"

	"github.com/fishnet-client/fishnet/internal/domain"
	"github.com/fishnet-client/fishnet/internal/observability"
)

// Queue is a small bounded structure with three operations: OfferJob,
// TakeJob, DeliverResult. It carries no batching logic of its own;
// fairness and conditional joining live in the coordinator (spec §4.3).
type Queue struct {
	jobs    chan domain.Job
	results chan *domain.Batch
}

// New creates a Queue sized for cores concurrent workers: the job and
// result channels are each buffered to cores so the coordinator can
// offer up to `cores` jobs (and workers can deliver up to `cores`
// results) without a rendezvous-induced deadlock during the transition
// window when a submit+acquire pair is in flight.
func New(cores int) *Queue {
	if cores < 1 {
		cores = 1
	}
	return &Queue{
		jobs:    make(chan domain.Job, cores),
		results: make(chan *domain.Batch, cores),
	}
}

// OfferJob is called by the coordinator when acquire returns a Job. It
// returns immediately while the job buffer (sized to cores) has room;
// otherwise it blocks until a worker takes a job or ctx is cancelled.
// The coordinator calls OfferJob synchronously before its next acquire,
// so a full buffer also holds back further acquires.
func (q *Queue) OfferJob(ctx context.Context, job domain.Job) error {
	select {
	case q.jobs <- job:
		observability.QueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TakeJob is called by a worker when it becomes idle; it suspends until
// a job is offered or ctx is cancelled.
func (q *Queue) TakeJob(ctx context.Context) (domain.Job, error) {
	select {
	case job := <-q.jobs:
		observability.QueueDepth.Dec()
		return job, nil
	case <-ctx.Done():
		return domain.Job{}, ctx.Err()
	}
}

// DeliverResult is called by a worker on batch completion (success or
// failure). It returns as soon as the batch is buffered; it blocks only
// while the result buffer (sized to cores) is full, until the
// coordinator collects a batch or ctx is cancelled. It does not wait for
// the coordinator to consume this batch.
func (q *Queue) DeliverResult(ctx context.Context, batch *domain.Batch) error {
	select {
	case q.results <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CollectResult is called by the coordinator to pick up one finished
// batch, if any is ready, without blocking.
func (q *Queue) CollectResult() (*domain.Batch, bool) {
	select {
	case b := <-q.results:
		return b, true
	default:
		return nil, false
	}
}

// WaitResult blocks until a finished batch is available or ctx is
// cancelled. The coordinator does not call it; it polls CollectResult.
func (q *Queue) WaitResult(ctx context.Context) (*domain.Batch, error) {
	select {
	case b := <-q.results:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
