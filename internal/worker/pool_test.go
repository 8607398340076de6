package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishnet-client/fishnet/internal/domain"
	"github.com/fishnet-client/fishnet/internal/engine"
)

func TestFailReason(t *testing.T) {
	assert.Equal(t, "engine_crash", failReason(fmt.Errorf("wrap: %w", domain.ErrEngineCrash)))
	assert.Equal(t, "engine_protocol", failReason(fmt.Errorf("wrap: %w", domain.ErrEngineProtocol)))
	assert.Equal(t, "unknown", failReason(fmt.Errorf("boom")))
}

func TestRunBatch_InvalidJobFailsFast(t *testing.T) {
	p := &Pool{}
	batch := domain.NewBatch(domain.Job{}, "engine-0", time.Now())
	p.runBatch(context.Background(), nil, batch)
	assert.True(t, batch.Failed)
}

// fakeEngine returns a scripted SearchResult per call, standing in for
// a live UCI subprocess.
type fakeEngine struct {
	results []engine.SearchResult
	calls   int
}

func (f *fakeEngine) ID() string { return "fake-0" }

func (f *fakeEngine) RunSearch(ctx context.Context, variant string, spec engine.SearchSpec) (engine.SearchResult, error) {
	res := f.results[f.calls]
	f.calls++
	return res, nil
}

func TestRunAnalysis_PVIsNotDuplicated(t *testing.T) {
	job := domain.Job{
		WorkID:   "w1",
		Kind:     domain.KindAnalysis,
		StartFEN: "startpos",
		Moves:    []string{"e7e5"},
	}
	batch := domain.NewBatch(job, "fake-0", time.Now())
	fe := &fakeEngine{results: []engine.SearchResult{
		{BestMove: "e2e4", Info: engine.Info{PV: []string{"e2e4", "e7e5", "g1f3"}}},
		{BestMove: "g1f3", Info: engine.Info{PV: []string{"g1f3", "b8c6"}}},
	}}

	p := &Pool{}
	p.runAnalysis(context.Background(), fe, batch)

	require.False(t, batch.Failed)
	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3"}, batch.Results[0].PV)
	assert.Equal(t, []string{"g1f3", "b8c6"}, batch.Results[1].PV)
}

func TestPVWithBestMove(t *testing.T) {
	assert.Equal(t, []string{"e2e4", "e7e5"}, pvWithBestMove("e2e4", []string{"e2e4", "e7e5"}))
	assert.Equal(t, []string{"e2e4"}, pvWithBestMove("e2e4", nil))
	assert.Equal(t, []string{"e2e4", "e7e5"}, pvWithBestMove("e2e4", []string{"e7e5"}))
}
