package progress

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishnet-client/fishnet/internal/domain"
)

type fakeClient struct {
	submits atomic.Int32
}

func (f *fakeClient) Acquire(ctx context.Context, slow, stop bool, flavor domain.Flavor) (domain.AcquireResult, error) {
	return domain.AcquireResult{NoWork: true}, nil
}

func (f *fakeClient) SubmitAnalysis(ctx context.Context, workID string, results []domain.PlyResult, stop bool, flavor domain.Flavor) (domain.AcquireResult, error) {
	f.submits.Add(1)
	return domain.AcquireResult{NoWork: true}, nil
}

func (f *fakeClient) SubmitMove(ctx context.Context, workID, bestMove string, stop bool) (domain.AcquireResult, error) {
	return domain.AcquireResult{NoWork: true}, nil
}

func (f *fakeClient) Abort(ctx context.Context, workID string) error { return nil }

func (f *fakeClient) Status(ctx context.Context) (domain.QueueStatus, bool, error) {
	return domain.QueueStatus{}, false, nil
}

func (f *fakeClient) CheckKey(ctx context.Context, key string) (bool, error) { return true, nil }

func TestReporter_TracksUntilStopped(t *testing.T) {
	fc := &fakeClient{}
	r := New(fc, 10*time.Millisecond)
	batch := &domain.Batch{Job: domain.Job{WorkID: "w1", Kind: domain.KindAnalysis}}

	stop := r.Track(context.Background(), batch)
	require.Eventually(t, func() bool { return fc.submits.Load() >= 1 }, time.Second, 5*time.Millisecond)
	stop()

	count := fc.submits.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, fc.submits.Load(), "no more submits after stop")
}

func TestReporter_ZeroIntervalIsNoop(t *testing.T) {
	fc := &fakeClient{}
	r := New(fc, 0)
	batch := &domain.Batch{Job: domain.Job{WorkID: "w1", Kind: domain.KindAnalysis}}
	stop := r.Track(context.Background(), batch)
	stop()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, int32(0), fc.submits.Load())
}

func TestReporter_SkipsMoveJobs(t *testing.T) {
	fc := &fakeClient{}
	r := New(fc, 5*time.Millisecond)
	batch := &domain.Batch{Job: domain.Job{WorkID: "w1", Kind: domain.KindMove}}
	stop := r.Track(context.Background(), batch)
	time.Sleep(30 * time.Millisecond)
	stop()
	assert.Equal(t, int32(0), fc.submits.Load())
}
