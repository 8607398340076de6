package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fishnet-client/fishnet/internal/observability"
)

// RunInfo describes the long-lived process facts a stats snapshot
// reports alongside the metric counters (spec §7's supplemented
// operator-visibility feature).
type RunInfo struct {
	Version   string
	UserAgent string
	Cores     int
	StartedAt time.Time
}

type statsResponse struct {
	observability.Snapshot
	Version   string `json:"version"`
	UserAgent string `json:"user_agent"`
	Cores     int    `json:"cores"`
	UptimeS   int64  `json:"uptime_seconds"`
}

// HealthzHandler reports liveness: the status server itself is up. It
// deliberately doesn't depend on the coordinator's state, since a
// crashed engine shouldn't take down the operator's ability to see why.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// StatsHandler serves a JSON snapshot of run counters. BuildRouter
// mounts it only when admin credentials are configured, and then behind
// AdminGuard.
func StatsHandler(info RunInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{
			Snapshot:  observability.TakeSnapshot(),
			Version:   info.Version,
			UserAgent: info.UserAgent,
			Cores:     info.Cores,
			UptimeS:   int64(time.Since(info.StartedAt).Seconds()),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
