// Package worker runs the per-core worker pool (spec §4.3): one
// goroutine per allocated core, each owning one engine.Engine, binding
// to jobs pulled from the queue and feeding them through the engine one
// position at a time.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fishnet-client/fishnet/internal/domain"
	"github.com/fishnet-client/fishnet/internal/engine"
	"github.com/fishnet-client/fishnet/internal/observability"
	"github.com/fishnet-client/fishnet/internal/progress"
	"github.com/fishnet-client/fishnet/internal/queue"
)

// Engine is the subset of *engine.Engine the pool depends on, narrowed
// to a port so tests can drive runAnalysis/runMove against a fake
// instead of a live UCI subprocess.
type Engine interface {
	ID() string
	RunSearch(ctx context.Context, variant string, spec engine.SearchSpec) (engine.SearchResult, error)
}

// Pool runs `cores` concurrent worker loops (spec §4.3).
type Pool struct {
	q        *queue.Queue
	engines  []Engine
	timeout  time.Duration
	reporter *progress.Reporter
}

// New builds a Pool bound to one Engine per slot in engines.
func New(q *queue.Queue, engines []Engine, commandTimeout time.Duration) *Pool {
	return &Pool{q: q, engines: engines, timeout: commandTimeout}
}

// WithReporter attaches a progress.Reporter that tracks each batch from
// the moment it starts running until it's delivered, so partial
// analysis results reach the coordinator before the batch finishes.
func (p *Pool) WithReporter(r *progress.Reporter) *Pool {
	p.reporter = r
	return p
}

// Run starts one worker goroutine per engine and blocks until ctx is
// cancelled and every worker has drained its current batch.
func (p *Pool) Run(ctx context.Context) {
	done := make(chan struct{}, len(p.engines))
	for _, eng := range p.engines {
		go func(e Engine) {
			p.loop(ctx, e)
			done <- struct{}{}
		}(eng)
	}
	for range p.engines {
		<-done
	}
}

// loop is one worker's inner loop (spec §4.3 items 1-5).
func (p *Pool) loop(ctx context.Context, e Engine) {
	for {
		job, err := p.q.TakeJob(ctx)
		if err != nil {
			return // context cancelled: pool is shutting down
		}
		batch := domain.NewBatch(job, e.ID(), time.Now())
		var stopTracking func()
		if p.reporter != nil {
			stopTracking = p.reporter.Track(ctx, batch)
		}
		p.runBatch(ctx, e, batch)
		if stopTracking != nil {
			stopTracking()
		}
		if err := p.q.DeliverResult(context.Background(), batch); err != nil {
			slog.Error("worker: failed to deliver result", slog.Any("error", err))
		}
	}
}

// runBatch drives batch.Job's positions through the engine in increasing
// ply order, skipping skipPositions, mutating batch in place so a
// concurrently tracking progress.Reporter observes partial results. On
// per-ply engine failure the entire batch is marked failed (spec §4.3
// item 4); the caller still delivers it so the coordinator can report
// the failure and reassign.
func (p *Pool) runBatch(ctx context.Context, e Engine, batch *domain.Batch) {
	job := batch.Job
	if err := job.Validate(); err != nil {
		batch.MarkFailed(err.Error())
		return
	}

	switch job.Kind {
	case domain.KindMove:
		p.runMove(ctx, e, batch)
	default:
		p.runAnalysis(ctx, e, batch)
	}
}

func (p *Pool) runAnalysis(ctx context.Context, e Engine, batch *domain.Batch) {
	job := batch.Job
	plyCount := job.PlyCount()
	for ply := 0; ply < plyCount; ply++ {
		if job.SkipPositions[ply] {
			continue
		}
		select {
		case <-ctx.Done():
			batch.MarkFailed("cancelled")
			return
		default:
		}

		nodes := job.NodesNNUE
		if nodes == 0 {
			nodes = job.NodesClassical
		}
		res, err := e.RunSearch(ctx, job.Variant, engine.SearchSpec{
			FEN:   job.StartFEN,
			Moves: job.Moves[:ply],
			Nodes: nodes,
		})
		if err != nil {
			observability.JobsFailedTotal.WithLabelValues(failReason(err)).Inc()
			batch.MarkFailed(err.Error())
			return
		}
		if res.Terminal {
			batch.SetResult(ply, domain.PlyResult{Status: domain.PlyTerminal})
			continue
		}
		if len(res.Info.PV) == 0 && res.BestMove == "" {
			// Defensive: an engine that returns neither a move nor a
			// terminal marker has violated the protocol.
			batch.MarkFailed("engine returned neither bestmove nor terminal")
			return
		}
		batch.SetResult(ply, domain.PlyResult{
			Status: domain.PlyComputed,
			PV:     pvWithBestMove(res.BestMove, res.Info.PV),
			Depth:  res.Info.Depth,
			Score:  res.Info.Score,
			Time:   res.Info.Time,
			Nodes:  res.Info.Nodes,
			NPS:    res.Info.NPS,
		})
	}
}

// pvWithBestMove returns the principal variation to report for a ply.
// The engine's final `info` line before `bestmove` already starts with
// bestMove (standard UCI output), so pv is used as-is; bestMove is only
// prepended when pv is empty or, defensively, doesn't already start
// with it.
func pvWithBestMove(bestMove string, pv []string) []string {
	if len(pv) > 0 && pv[0] == bestMove {
		return pv
	}
	return append([]string{bestMove}, pv...)
}

func (p *Pool) runMove(ctx context.Context, e Engine, batch *domain.Batch) {
	job := batch.Job
	setting := engine.LookupLevel(job.Level)
	res, err := e.RunSearch(ctx, job.Variant, engine.SearchSpec{
		FEN:      job.StartFEN,
		Moves:    job.Moves,
		MoveTime: setting.MoveTime,
		MaxDepth: setting.MaxDepth,
		Elo:      setting.Elo,
	})
	if err != nil {
		observability.JobsFailedTotal.WithLabelValues(failReason(err)).Inc()
		batch.MarkFailed(err.Error())
		return
	}
	if res.Terminal {
		batch.SetResult(0, domain.PlyResult{Status: domain.PlyTerminal})
		return
	}
	batch.SetBestMove(res.BestMove)
	batch.SetResult(0, domain.PlyResult{Status: domain.PlyComputed, PV: []string{res.BestMove}})
}

func failReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEngineCrash):
		return "engine_crash"
	case errors.Is(err, domain.ErrEngineProtocol):
		return "engine_protocol"
	default:
		return "unknown"
	}
}
