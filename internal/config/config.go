// Package config defines fishnet's configuration: environment-variable
// parsing via caarlos0/env, CLI-flag overrides applied by cmd/fishnet, and
// the symbolic/duration backlog parsing described in spec §4.3 and §9.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/fishnet-client/fishnet/internal/domain"
)

// Config holds all fishnet configuration. Fields map 1:1 onto the CLI
// flags and environment variables named in spec §6.2.
type Config struct {
	AppEnv          string `env:"APP_ENV" envDefault:"dev"`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"fishnet"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`

	Key     string `env:"KEY"`
	KeyFile string `env:"KEY_FILE"`

	Cores       string `env:"CORES" envDefault:"auto"`
	Endpoint    string `env:"ENDPOINT" envDefault:"https://fishnet.lichess.ovh"`
	CPUPriority string `env:"CPU_PRIORITY" envDefault:"normal"`

	UserBacklogRaw   string `env:"USER_BACKLOG" envDefault:""`
	SystemBacklogRaw string `env:"SYSTEM_BACKLOG" envDefault:""`

	MaxBackoff time.Duration `env:"MAX_BACKOFF" envDefault:"30s"`

	StatsFile   string `env:"STATS_FILE" envDefault:""`
	EnableStats bool   `env:"ENABLE_STATS" envDefault:"false"`

	AutoUpdate bool `env:"AUTO_UPDATE" envDefault:"false"`

	// HTTP/shutdown/progress timing, carried as ambient stack regardless
	// of spec.md's feature non-goals.
	HTTPReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	ShutdownGrace      time.Duration `env:"SHUTDOWN_GRACE" envDefault:"60s"`
	UCICommandTimeout  time.Duration `env:"UCI_COMMAND_TIMEOUT" envDefault:"60s"`
	ProgressInterval   time.Duration `env:"PROGRESS_INTERVAL" envDefault:"5s"`
	ProgressEnabled    bool          `env:"PROGRESS_ENABLED" envDefault:"true"`
	StatusPollInterval time.Duration `env:"STATUS_POLL_INTERVAL" envDefault:"60s"`

	// HashMiBPerCore is passed unchanged to every engine as the "Hash"
	// UCI option; each engine runs on one core (Threads=1).
	HashMiBPerCore int `env:"HASH_MIB_PER_CORE" envDefault:"32"`

	// Engine binary paths (spec §6.3: the binaries themselves are
	// opaque UCI processes, out of scope, but fishnet still needs to
	// know where they live on disk).
	StockfishStandardPath string `env:"STOCKFISH_STANDARD_PATH" envDefault:"./stockfish"`
	StockfishVariantPath  string `env:"STOCKFISH_VARIANT_PATH" envDefault:"./stockfish-variant"`

	// Local status server (§6 in SPEC_FULL.md).
	StatusListenAddr   string `env:"STATUS_LISTEN_ADDR" envDefault:"127.0.0.1:9366"`
	AdminUsername      string `env:"ADMIN_USERNAME" envDefault:""`
	AdminPasswordHash  string `env:"ADMIN_PASSWORD_HASH" envDefault:""`
	AdminSessionSecret string `env:"ADMIN_SESSION_SECRET" envDefault:""`
	StatusRatePerMin   int    `env:"STATUS_RATE_PER_MIN" envDefault:"60"`
}

// AdminEnabled reports whether the local status server's authenticated
// /stats endpoint should be served, mirroring the teacher's
// Config.AdminEnabled gating idiom.
func (c Config) AdminEnabled() bool {
	return c.AdminUsername != "" && c.AdminPasswordHash != "" && c.AdminSessionSecret != ""
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.EqualFold(c.AppEnv, "dev") }

// Load parses environment variables into a Config. CLI-flag values are
// layered on top by cmd/fishnet after Load returns, taking precedence.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w: %w", domain.ErrConfig, err)
	}
	return cfg, nil
}

// ResolveCores turns the "auto" sentinel (or an explicit count) into a
// concrete worker count.
func (c Config) ResolveCores(numCPU int) int {
	raw := strings.TrimSpace(c.Cores)
	if raw == "" || strings.EqualFold(raw, "auto") {
		return numCPU
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n <= 0 {
		return numCPU
	}
	return n
}

// ResolveNice maps the symbolic CPUPriority setting to a Unix nice
// adjustment, passed to the engine subprocess on spawn (spec §3.1).
func (c Config) ResolveNice() int {
	switch strings.ToLower(strings.TrimSpace(c.CPUPriority)) {
	case "low":
		return 10
	case "lowest":
		return 15
	case "idle":
		return 19
	default:
		return 0
	}
}

// UserBacklog parses UserBacklogRaw into a domain.JoinThreshold.
func (c Config) UserBacklog() (domain.JoinThreshold, error) {
	return parseBacklog(c.UserBacklogRaw)
}

// SystemBacklog parses SystemBacklogRaw into a domain.JoinThreshold.
func (c Config) SystemBacklog() (domain.JoinThreshold, error) {
	return parseBacklog(c.SystemBacklogRaw)
}

// parseBacklog accepts "", "short", "long", or a Go duration literal
// (e.g. "30s", "10m"), per spec §4.3 and §9. A symbolic value is kept
// as-is in JoinThreshold.Symbolic and always satisfies the join
// condition; it is not sent to the server.
func parseBacklog(raw string) (domain.JoinThreshold, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.JoinThreshold{}, nil
	}
	switch strings.ToLower(raw) {
	case "short", "long":
		return domain.JoinThreshold{Symbolic: strings.ToLower(raw), HasValue: true}, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return domain.JoinThreshold{}, fmt.Errorf("parse backlog %q: %w: %w", raw, domain.ErrConfig, err)
	}
	return domain.JoinThreshold{Duration: d, HasValue: true}, nil
}
