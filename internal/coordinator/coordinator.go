// Package coordinator implements the control-plane state machine (spec
// §4.4): decides when to acquire, combines submission with the next
// acquire, consults queue-status for conditional joining, and runs
// graceful shutdown. Acquire, submit, abort and status calls are made
// from this single goroutine, the same single-task-drives-everything
// shape the teacher's cmd/worker main loop uses for its own consumer
// loop; the optional progress reporter posts partial analyses through
// the same API client from its own goroutines.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/fishnet-client/fishnet/internal/domain"
	"github.com/fishnet-client/fishnet/internal/observability"
	"github.com/fishnet-client/fishnet/internal/queue"
)

// Config parametrizes the coordinator loop's policy decisions.
type Config struct {
	Cores  int
	Flavor domain.Flavor

	UserBacklog   domain.JoinThreshold
	SystemBacklog domain.JoinThreshold

	StatusPollInterval time.Duration
	ShutdownGrace      time.Duration
	MaxBackoff         time.Duration
}

// Coordinator drives the API client and the Queue: F in spec §2.
type Coordinator struct {
	client domain.CoordinatorClient
	q      *queue.Queue
	cfg    Config

	lastStatus   domain.QueueStatus
	lastStatusOK bool
	lastStatusAt time.Time

	// inFlightIDs holds the work_id of every job acquired but not yet
	// submitted, bounded by cfg.Cores. On shutdown-grace expiry any
	// still here is explicitly aborted (spec §4.4).
	inFlightIDs map[string]struct{}
}

// New builds a Coordinator.
func New(client domain.CoordinatorClient, q *queue.Queue, cfg Config) *Coordinator {
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.StatusPollInterval <= 0 {
		cfg.StatusPollInterval = 60 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 60 * time.Second
	}
	return &Coordinator{client: client, q: q, cfg: cfg, inFlightIDs: make(map[string]struct{})}
}

// Run drives the coordinator loop until ctx is cancelled, then runs the
// bounded shutdown drain (spec §4.4's "Shutting down" state) before
// returning. The returned error is non-nil only for a fatal condition
// (outdated client, auth failure) that should cause the process to exit
// non-zero.
func (c *Coordinator) Run(ctx context.Context) error {
	noWorkBackoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return c.shutdown()
		default:
		}

		if batch, ok := c.q.CollectResult(); ok {
			if err := c.submit(ctx, batch, false); err != nil {
				if isFatal(err) {
					return c.shutdownWithError(err)
				}
				slog.Warn("coordinator: submit failed, result dropped (server will time out the work_id)",
					slog.String("work_id", batch.Job.WorkID), slog.Any("error", err))
			}
			continue
		}

		if len(c.inFlightIDs) >= c.cfg.Cores {
			// No queue capacity: wait for a worker to free a slot
			// rather than busy-spinning on CollectResult.
			select {
			case <-ctx.Done():
				return c.shutdown()
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		shouldJoin, slow := c.shouldAcquire(ctx)
		if !shouldJoin {
			select {
			case <-ctx.Done():
				return c.shutdown()
			case <-time.After(c.cfg.StatusPollInterval):
			}
			continue
		}

		res, err := c.client.Acquire(ctx, slow, false, c.cfg.Flavor)
		if err != nil {
			if isFatal(err) {
				return c.shutdownWithError(err)
			}
			slog.Warn("coordinator: acquire failed", slog.Any("error", err))
			continue
		}
		if res.NoWork {
			noWorkBackoff = jitteredSleep(ctx, noWorkBackoff, c.cfg.MaxBackoff)
			continue
		}
		noWorkBackoff = time.Second
		if err := c.offer(ctx, res); err != nil {
			return c.shutdown()
		}
	}
}

func (c *Coordinator) offer(ctx context.Context, res domain.AcquireResult) error {
	if res.Job == nil {
		return nil
	}
	if err := res.Job.Validate(); err != nil {
		slog.Warn("coordinator: dropping invalid job", slog.Any("error", err))
		return nil
	}
	observability.JobsAcquiredTotal.WithLabelValues(string(res.Job.Kind)).Inc()
	if err := c.q.OfferJob(ctx, *res.Job); err != nil {
		return err
	}
	c.inFlightIDs[res.Job.WorkID] = struct{}{}
	return nil
}

// submit posts a finished batch (combined with the next acquire), and
// offers any job that reply carries.
func (c *Coordinator) submit(ctx context.Context, batch *domain.Batch, stop bool) error {
	delete(c.inFlightIDs, batch.Job.WorkID)
	kind := "ok"
	if batch.Failed {
		kind = "failed"
	}
	observability.JobsSubmittedTotal.WithLabelValues(kind).Inc()

	var (
		res domain.AcquireResult
		err error
	)
	if batch.Job.Kind == domain.KindMove && !batch.Failed {
		res, err = c.client.SubmitMove(ctx, batch.Job.WorkID, batch.BestMove, stop)
	} else {
		res, err = c.client.SubmitAnalysis(ctx, batch.Job.WorkID, batch.Results, stop, c.cfg.Flavor)
	}
	if err != nil {
		return err
	}
	if stop {
		return nil
	}
	return c.offer(ctx, res)
}

// shouldAcquire implements the fairness / conditional-join rule from
// spec §4.3, refreshing the cached status at most every
// StatusPollInterval.
func (c *Coordinator) shouldAcquire(ctx context.Context) (join, slow bool) {
	if !c.cfg.UserBacklog.HasValue && !c.cfg.SystemBacklog.HasValue {
		return true, false
	}

	if time.Since(c.lastStatusAt) >= c.cfg.StatusPollInterval {
		status, ok, err := c.client.Status(ctx)
		c.lastStatusAt = time.Now()
		if err != nil || !ok {
			c.lastStatusOK = false
		} else {
			c.lastStatus = status
			c.lastStatusOK = true
		}
	}
	if !c.lastStatusOK {
		return true, false
	}

	userOK := c.cfg.UserBacklog.Satisfied(c.lastStatus.User.OldestS)
	systemOK := c.cfg.SystemBacklog.Satisfied(c.lastStatus.System.OldestS)
	if userOK {
		return true, false
	}
	if systemOK {
		return true, true
	}
	return false, false
}

// shutdown drains in-flight batches within the configured grace period,
// aborts anything left un-started, and returns nil (a graceful
// shutdown is not itself an error).
func (c *Coordinator) shutdown() error {
	return c.drain(nil)
}

func (c *Coordinator) shutdownWithError(cause error) error {
	_ = c.drain(cause)
	return cause
}

func (c *Coordinator) drain(cause error) error {
	slog.Info("coordinator: shutting down", slog.Any("cause", cause))
	deadline := time.After(c.cfg.ShutdownGrace)
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownGrace)
	defer cancel()

	for len(c.inFlightIDs) > 0 {
		select {
		case batch, ok := <-waitOne(c.q):
			if !ok {
				break
			}
			if err := c.submit(ctx, batch, true); err != nil {
				slog.Warn("coordinator: final submit failed during drain", slog.Any("error", err))
			}
		case <-deadline:
			slog.Warn("coordinator: shutdown grace period expired, aborting remaining jobs",
				slog.Int("remaining", len(c.inFlightIDs)))
			c.abortRemaining()
			return nil
		}
	}
	return nil
}

// abortRemaining calls abort for every job still tracked as in-flight
// when the shutdown grace period expires, per spec §4.4.
func (c *Coordinator) abortRemaining() {
	abortCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for workID := range c.inFlightIDs {
		if err := c.client.Abort(abortCtx, workID); err != nil {
			slog.Warn("coordinator: abort failed during shutdown", slog.String("work_id", workID), slog.Any("error", err))
		} else {
			observability.JobsAbortedTotal.Inc()
		}
		delete(c.inFlightIDs, workID)
	}
}

// waitOne adapts Queue.CollectResult's poll shape into a channel for
// select-based draining without spinning.
func waitOne(q *queue.Queue) <-chan *domain.Batch {
	ch := make(chan *domain.Batch, 1)
	go func() {
		for {
			if b, ok := q.CollectResult(); ok {
				ch <- b
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()
	return ch
}

func jitteredSleep(ctx context.Context, current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(current) + 1))
	select {
	case <-time.After(current/2 + jitter/2):
	case <-ctx.Done():
	}
	return next
}

func isFatal(err error) bool {
	return errors.Is(err, domain.ErrUpdateRequired) || errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrConfig)
}
