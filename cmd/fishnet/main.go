// Command fishnet runs the volunteer distributed chess-analysis worker
// client described in spec §1-§9: it long-polls a coordinator for jobs,
// feeds them through local Stockfish subprocesses, and submits results
// back, with a small cobra surface for the subcommands spec §6.2 names.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fishnet-client/fishnet/internal/app"
	"github.com/fishnet-client/fishnet/internal/config"
	"github.com/fishnet-client/fishnet/internal/engine"
)

// benchmarkPosition is Stockfish's own "bench" starting position,
// reused here since it has no forced mates or draws within the node
// budgets below.
const benchmarkPosition = "rnbqkb1r/pp1p1ppp/2p2n2/4p3/2P5/2N3P1/PP1PPP1P/R1BQKBNR w KQkq - 0 1"

var (
	flagKey           string
	flagKeyFile       string
	flagCores         string
	flagEndpoint      string
	flagUserBacklog   string
	flagSystemBacklog string
	flagMaxBackoff    time.Duration
	flagCPUPriority   string
	flagNoConf        bool
	flagStatsFile     string
	flagNoStatsFile   bool
	flagAutoUpdate    bool
)

func main() {
	root := &cobra.Command{
		Use:   "fishnet",
		Short: "Volunteer distributed chess analysis worker",
	}
	root.PersistentFlags().StringVar(&flagKey, "key", "", "fishnet API key")
	root.PersistentFlags().StringVar(&flagKeyFile, "key-file", "", "path to a file holding the API key")
	root.PersistentFlags().StringVar(&flagCores, "cores", "", "number of cores to use, or \"auto\"")
	root.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "coordinator base URL")
	root.PersistentFlags().StringVar(&flagUserBacklog, "user-backlog", "", "join threshold for the user queue (duration, \"short\", or \"long\")")
	root.PersistentFlags().StringVar(&flagSystemBacklog, "system-backlog", "", "join threshold for the system queue")
	root.PersistentFlags().DurationVar(&flagMaxBackoff, "max-backoff", 0, "maximum acquire backoff")
	root.PersistentFlags().StringVar(&flagCPUPriority, "cpu-priority", "", "engine subprocess nice level: normal, low, lowest, idle")
	root.PersistentFlags().BoolVar(&flagNoConf, "no-conf", false, "skip reading a local config file")
	root.PersistentFlags().StringVar(&flagStatsFile, "stats-file", "", "path to persist run statistics")
	root.PersistentFlags().BoolVar(&flagNoStatsFile, "no-stats-file", false, "disable stats file persistence")
	root.PersistentFlags().BoolVar(&flagAutoUpdate, "auto-update", false, "accepted for compatibility; this build does not update itself")

	root.AddCommand(runCmd(), configureCmd(), systemdCmd(false), systemdCmd(true), benchmarkCmd(), licenseCmd())

	if err := root.Execute(); err != nil {
		slog.Error("fishnet exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// loadConfig builds a config.Config from the environment, then layers
// any non-zero CLI flags on top (flags win, per spec §6.2).
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if flagKey != "" {
		cfg.Key = flagKey
	}
	if flagKeyFile != "" {
		cfg.KeyFile = flagKeyFile
	}
	if flagCores != "" {
		cfg.Cores = flagCores
	}
	if flagEndpoint != "" {
		cfg.Endpoint = flagEndpoint
	}
	if flagUserBacklog != "" {
		cfg.UserBacklogRaw = flagUserBacklog
	}
	if flagSystemBacklog != "" {
		cfg.SystemBacklogRaw = flagSystemBacklog
	}
	if flagMaxBackoff > 0 {
		cfg.MaxBackoff = flagMaxBackoff
	}
	if flagCPUPriority != "" {
		cfg.CPUPriority = flagCPUPriority
	}
	if flagAutoUpdate {
		cfg.AutoUpdate = true
	}
	if flagNoStatsFile {
		cfg.StatsFile = ""
		cfg.EnableStats = false
	} else if flagStatsFile != "" {
		cfg.StatsFile = flagStatsFile
		cfg.EnableStats = true
	}
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Join the network and process analysis jobs (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return app.Run(ctx, cfg)
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Explain how to configure fishnet (writes no config file)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("configure is not implemented in this build; set KEY, ENDPOINT, CORES etc. as environment variables or flags instead.")
			return nil
		},
	}
}

func systemdCmd(user bool) *cobra.Command {
	use := "systemd"
	unitPath := "/etc/systemd/system/fishnet.service"
	if user {
		use = "systemd-user"
		unitPath = "~/.config/systemd/user/fishnet.service"
	}
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Print a systemd unit file for %s", unitPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				exe = "fishnet"
			}
			fmt.Printf(systemdUnitTemplate, exe)
			return nil
		},
	}
}

const systemdUnitTemplate = `[Unit]
Description=Fishnet distributed chess analysis worker
After=network.target

[Service]
ExecStart=%s run
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// benchmarkCmd runs one short search directly against the standard
// engine binary, bypassing the coordinator and worker pool entirely
// (spec §7: benchmark is a thin wrapper around the UCI session
// component with no coordinator involvement).
func benchmarkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "benchmark",
		Short: "Run a short engine benchmark and report nodes/sec",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("benchmarking %s...\n", cfg.StockfishStandardPath)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			sess, err := engine.StartSession(ctx, cfg.StockfishStandardPath, 0)
			if err != nil {
				return fmt.Errorf("benchmark: spawn engine: %w", err)
			}
			defer func() { _ = sess.Quit(2*time.Second, 3*time.Second) }()

			options := map[string]string{"Hash": fmt.Sprintf("%d", cfg.HashMiBPerCore), "Threads": "1"}
			if err := sess.Handshake(ctx, cfg.UCICommandTimeout, options); err != nil {
				return fmt.Errorf("benchmark: handshake: %w", err)
			}

			res, err := sess.Search(ctx, cfg.UCICommandTimeout, engine.SearchSpec{
				FEN:   benchmarkPosition,
				Nodes: 2_000_000,
			})
			if err != nil {
				return fmt.Errorf("benchmark: search: %w", err)
			}
			fmt.Printf("bestmove %s  depth %d  nodes %d  nps %d  time %s\n",
				res.BestMove, res.Info.Depth, res.Info.Nodes, res.Info.NPS, res.Info.Time)
			return nil
		},
	}
}

func licenseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "license",
		Short: "Print license information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("fishnet is distributed under the GNU Affero General Public License v3.")
			return nil
		},
	}
}
