package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fishnet-client/fishnet/internal/domain"
	"github.com/fishnet-client/fishnet/internal/observability"
)

// Binaries names the two backend binaries an Engine stub can run: the
// primary Stockfish for the "standard" variant, and a variant-capable
// fork for everything else (spec §4.2, "Variant → engine selection").
type Binaries struct {
	Standard string
	Variant  string
}

// Options configures one Engine's static UCI options and timeouts.
type Options struct {
	HashMiB        int
	CommandTimeout time.Duration
	MaxBackoff     time.Duration
	NiceAdjust     int
}

// Engine supervises one UCI session for the lifetime of the run: it
// spawns the session, restarts it with backoff on crash, and swaps
// between the standard/variant binaries as jobs require (spec §4.2).
//
// An Engine is owned by at most one Batch at a time; callers serialize
// access to it themselves (the worker pool binds exactly one Engine per
// worker goroutine).
type Engine struct {
	id       string
	binaries Binaries
	opts     Options

	mu      sync.Mutex
	session *Session
	variant string // "" until first spawned
	backoff domain.CrashBackoff
}

// New constructs an unspawned Engine. The first RunSearch spawns its
// session.
func New(id string, binaries Binaries, opts Options) *Engine {
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Engine{
		id:       id,
		binaries: binaries,
		opts:     opts,
		backoff:  domain.CrashBackoff{MaxBackoff: opts.MaxBackoff},
	}
}

// ID returns the engine's stable identifier, used to correlate it with
// batches and logs.
func (e *Engine) ID() string { return e.id }

// ensureSession spawns (or respawns) a session for the requested variant.
// It respawns whenever the requested variant differs from the one the
// current session was started for, picking the standard or variant
// binary to match.
func (e *Engine) ensureSession(ctx context.Context, variant string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	binary := e.binaries.Standard
	if variant != "" && variant != "standard" {
		binary = e.binaries.Variant
	}

	if e.session != nil && e.variant == variant {
		return nil
	}
	if e.session != nil {
		_ = e.session.Quit(2*time.Second, 3*time.Second)
		e.session = nil
	}

	sess, err := StartSession(ctx, binary, e.opts.NiceAdjust)
	if err != nil {
		return err
	}
	options := map[string]string{
		"Hash":    fmt.Sprintf("%d", e.opts.HashMiB),
		"Threads": "1",
	}
	if variant != "" && variant != "standard" {
		options["UCI_Variant"] = variant
		options["UCI_Chess960"] = "false"
	}
	if err := sess.Handshake(ctx, e.opts.CommandTimeout, options); err != nil {
		_ = sess.Quit(1*time.Second, 2*time.Second)
		return err
	}
	e.session = sess
	e.variant = variant
	return nil
}

// RunSearch spawns/reuses a session for the given variant and runs one
// search. If spawning or the search fails, it sleeps the exponential
// crash backoff (spec §4.2), drops the session and returns the error; the
// next call spawns a fresh session. The crash counter resets on a
// successfully completed search.
func (e *Engine) RunSearch(ctx context.Context, variant string, spec SearchSpec) (SearchResult, error) {
	if err := e.ensureSession(ctx, variant); err != nil {
		e.recordCrash(ctx)
		return SearchResult{}, err
	}

	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()

	observability.ActiveSearches.Inc()
	res, err := sess.Search(ctx, e.opts.CommandTimeout, spec)
	observability.ActiveSearches.Dec()
	if err != nil {
		e.mu.Lock()
		e.session = nil // force respawn on next call
		e.mu.Unlock()
		e.recordCrash(ctx)
		return SearchResult{}, err
	}

	e.mu.Lock()
	e.backoff.Reset()
	e.mu.Unlock()
	return res, nil
}

// recordCrash increments the consecutive-crash counter, sleeps the
// computed backoff (bounded by ctx), and records the crash metrics.
func (e *Engine) recordCrash(ctx context.Context) {
	observability.EngineCrashesTotal.Inc()

	e.mu.Lock()
	delay := e.backoff.Next()
	e.mu.Unlock()

	observability.EngineRestartBackoffSeconds.Observe(delay.Seconds())
	slog.Warn("engine crashed, backing off before respawn",
		slog.String("engine_id", e.id),
		slog.Duration("backoff", delay))

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// Shutdown terminates the supervised session, escalating from quit to
// terminate to kill (spec §4.2/§9).
func (e *Engine) Shutdown(quitTimeout, killTimeout time.Duration) error {
	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Quit(quitTimeout, killTimeout)
}
