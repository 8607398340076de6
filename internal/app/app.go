// Package app wires fishnet's components together: config, observability,
// the coordinator API client, the engine pool, the worker pool, the
// progress reporter, the coordinator loop, and the local status server.
// The construction order mirrors the teacher's cmd/worker main: load
// config, set up logging/tracing/metrics, then build dependencies
// bottom-up before starting any goroutines.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fishnet-client/fishnet/internal/adapter/api"
	"github.com/fishnet-client/fishnet/internal/adapter/httpserver"
	"github.com/fishnet-client/fishnet/internal/config"
	"github.com/fishnet-client/fishnet/internal/coordinator"
	"github.com/fishnet-client/fishnet/internal/domain"
	"github.com/fishnet-client/fishnet/internal/engine"
	"github.com/fishnet-client/fishnet/internal/observability"
	"github.com/fishnet-client/fishnet/internal/progress"
	"github.com/fishnet-client/fishnet/internal/queue"
	"github.com/fishnet-client/fishnet/internal/worker"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// UserAgent builds the identifying string sent with every coordinator
// request (spec §6.1).
func UserAgent() string {
	return fmt.Sprintf("fishnet-%s-%s/%s", runtime.GOOS, runtime.GOARCH, Version)
}

// resolveKey returns cfg.Key, or the contents of cfg.KeyFile if Key is
// unset, trimmed the way a hand-edited key file commonly carries a
// trailing newline.
func resolveKey(cfg config.Config) (string, error) {
	if cfg.Key != "" {
		return cfg.Key, nil
	}
	if cfg.KeyFile == "" {
		return "", nil
	}
	raw, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return "", fmt.Errorf("read key file: %w: %w", domain.ErrConfig, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Run builds the full application and blocks until ctx is cancelled,
// then drains in-flight work and returns.
func Run(ctx context.Context, cfg config.Config) error {
	instanceID := uuid.NewString()
	logger := observability.SetupLogger(cfg).With(slog.String("instance_id", instanceID))
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to set up tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	key, err := resolveKey(cfg)
	if err != nil {
		return err
	}

	cores := cfg.ResolveCores(runtime.NumCPU())
	userAgent := UserAgent()

	client := api.New(cfg, cfg.Endpoint, key, userAgent)

	if key != "" {
		ok, err := client.CheckKey(ctx, key)
		if err != nil {
			slog.Warn("key check request failed, continuing anyway", slog.Any("error", err))
		} else if !ok {
			return fmt.Errorf("configured key rejected by %s: %w", cfg.Endpoint, domain.ErrAuth)
		}
	}

	q := queue.New(cores)

	engineOpts := engine.Options{
		HashMiB:        cfg.HashMiBPerCore,
		CommandTimeout: cfg.UCICommandTimeout,
		MaxBackoff:     cfg.MaxBackoff,
		NiceAdjust:     cfg.ResolveNice(),
	}
	binaries := engine.Binaries{
		Standard: cfg.StockfishStandardPath,
		Variant:  cfg.StockfishVariantPath,
	}
	liveEngines := make([]*engine.Engine, cores)
	engines := make([]worker.Engine, cores)
	for i := 0; i < cores; i++ {
		liveEngines[i] = engine.New(fmt.Sprintf("engine-%d", i), binaries, engineOpts)
		engines[i] = liveEngines[i]
	}

	pool := worker.New(q, engines, cfg.UCICommandTimeout)
	if cfg.ProgressEnabled {
		pool = pool.WithReporter(progress.New(client, cfg.ProgressInterval))
	}

	userBacklog, err := cfg.UserBacklog()
	if err != nil {
		return err
	}
	systemBacklog, err := cfg.SystemBacklog()
	if err != nil {
		return err
	}

	coord := coordinator.New(client, q, coordinator.Config{
		Cores:              cores,
		Flavor:             domain.FlavorNNUE,
		UserBacklog:        userBacklog,
		SystemBacklog:      systemBacklog,
		StatusPollInterval: cfg.StatusPollInterval,
		ShutdownGrace:      cfg.ShutdownGrace,
		MaxBackoff:         cfg.MaxBackoff,
	})

	startedAt := time.Now()
	statusServer := &http.Server{
		Addr: cfg.StatusListenAddr,
		Handler: httpserver.BuildRouter(cfg, httpserver.RunInfo{
			Version:   Version,
			UserAgent: userAgent,
			Cores:     cores,
			StartedAt: startedAt,
		}),
		ReadTimeout: cfg.HTTPReadTimeout,
	}
	go func() {
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server error", slog.Any("error", err))
		}
	}()

	if cfg.EnableStats && cfg.StatsFile != "" {
		go runStatsFile(ctx, cfg.StatsFile, cfg.ProgressInterval)
	}

	slog.Info("fishnet starting",
		slog.String("endpoint", cfg.Endpoint),
		slog.Int("cores", cores),
		slog.String("user_agent", userAgent),
	)

	poolDone := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(poolDone)
	}()

	coordErr := coord.Run(ctx)
	<-poolDone
	shutdownEngines(liveEngines)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = statusServer.Shutdown(shutdownCtx)

	slog.Info("fishnet stopped")
	return coordErr
}

// shutdownEngines quits every supervised engine session, escalating
// quit → terminate → kill per engine (spec §4.4/§9), once the worker
// pool has drained and no search can be in flight.
func shutdownEngines(engines []*engine.Engine) {
	var wg sync.WaitGroup
	for _, e := range engines {
		wg.Add(1)
		go func(e *engine.Engine) {
			defer wg.Done()
			if err := e.Shutdown(2*time.Second, 3*time.Second); err != nil {
				slog.Warn("app: engine shutdown failed", slog.String("engine_id", e.ID()), slog.Any("error", err))
			}
		}(e)
	}
	wg.Wait()
}
