package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishnet-client/fishnet/internal/domain"
	"github.com/fishnet-client/fishnet/internal/queue"
)

type scriptedClient struct {
	jobs       []domain.AcquireResult
	acquireIdx atomic.Int32
	submitted  atomic.Int32
	aborted    atomic.Int32
	abortedID  string
}

func (s *scriptedClient) Acquire(ctx context.Context, slow, stop bool, flavor domain.Flavor) (domain.AcquireResult, error) {
	i := int(s.acquireIdx.Add(1)) - 1
	if i >= len(s.jobs) {
		return domain.AcquireResult{NoWork: true}, nil
	}
	return s.jobs[i], nil
}

func (s *scriptedClient) SubmitAnalysis(ctx context.Context, workID string, results []domain.PlyResult, stop bool, flavor domain.Flavor) (domain.AcquireResult, error) {
	s.submitted.Add(1)
	return domain.AcquireResult{NoWork: true}, nil
}

func (s *scriptedClient) SubmitMove(ctx context.Context, workID, bestMove string, stop bool) (domain.AcquireResult, error) {
	s.submitted.Add(1)
	return domain.AcquireResult{NoWork: true}, nil
}

func (s *scriptedClient) Abort(ctx context.Context, workID string) error {
	s.aborted.Add(1)
	s.abortedID = workID
	return nil
}

func (s *scriptedClient) Status(ctx context.Context) (domain.QueueStatus, bool, error) {
	return domain.QueueStatus{}, false, nil
}

func (s *scriptedClient) CheckKey(ctx context.Context, key string) (bool, error) { return true, nil }

func TestCoordinator_OffersAcquiredJob(t *testing.T) {
	job := domain.Job{WorkID: "w1", Kind: domain.KindAnalysis, StartFEN: "startpos"}
	sc := &scriptedClient{jobs: []domain.AcquireResult{{Job: &job}}}
	q := queue.New(1)
	c := New(sc, q, Config{Cores: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	taken, err := q.TakeJob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "w1", taken.WorkID)

	cancel()
	<-done
}

func TestCoordinator_SubmitsDeliveredBatch(t *testing.T) {
	sc := &scriptedClient{}
	q := queue.New(1)
	c := New(sc, q, Config{Cores: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.NoError(t, q.DeliverResult(context.Background(), &domain.Batch{
		Job: domain.Job{WorkID: "w1", Kind: domain.KindAnalysis},
	}))

	require.Eventually(t, func() bool { return sc.submitted.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestIsFatal_ClassifiesFatalErrors(t *testing.T) {
	// Simulating an HTTP 400 belongs to the api package's own tests;
	// here only isFatal, which Run uses to decide whether an acquire or
	// submit error ends the loop, is checked directly.
	assert.True(t, isFatal(domain.ErrUpdateRequired))
	assert.True(t, isFatal(domain.ErrAuth))
	assert.False(t, isFatal(domain.ErrTransient))
}

func TestShouldAcquire_DefaultJoin(t *testing.T) {
	sc := &scriptedClient{}
	q := queue.New(1)
	c := New(sc, q, Config{Cores: 1})
	join, slow := c.shouldAcquire(context.Background())
	assert.True(t, join)
	assert.False(t, slow)
}

func TestShouldAcquire_RespectsBacklog(t *testing.T) {
	sc := &scriptedClient{}
	q := queue.New(1)
	c := New(sc, q, Config{
		Cores:         1,
		UserBacklog:   domain.JoinThreshold{Duration: time.Hour, HasValue: true},
		SystemBacklog: domain.JoinThreshold{Duration: time.Hour, HasValue: true},
	})
	join, _ := c.shouldAcquire(context.Background())
	// Status() returns ok=false in the fake, so the coordinator falls
	// back to "always join" per spec §4.3.
	assert.True(t, join)
}

func TestDrain_AbortsUnstartedJobOnGraceExpiry(t *testing.T) {
	job := domain.Job{WorkID: "stuck", Kind: domain.KindAnalysis, StartFEN: "startpos"}
	sc := &scriptedClient{jobs: []domain.AcquireResult{{Job: &job}}}
	q := queue.New(1)
	c := New(sc, q, Config{Cores: 1, ShutdownGrace: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Give the coordinator a moment to acquire and offer the job. It is
	// never taken off the queue or delivered back, so it is still
	// in-flight when shutdown begins.
	time.Sleep(20 * time.Millisecond)

	cancel()
	err := <-done
	require.NoError(t, err)
	assert.Equal(t, int32(1), sc.aborted.Load())
	assert.Equal(t, "stuck", sc.abortedID)
}
