package config

import (
	"strings"
	"time"
)

// APIBackoffConfig configures the exponential backoff used by the API
// client's retry loop (base 1s, capped at MaxBackoff), mirroring the
// teacher's GetAIBackoffConfig helper. Jitter is cenkalti/backoff's
// default randomization (each interval varied by ±50%), not full jitter.
type APIBackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// GetAPIBackoffConfig returns the backoff parameters for the API client.
// In test environments (AppEnv == "test") it returns much shorter
// intervals so retry tests don't sleep for real.
func (c Config) GetAPIBackoffConfig() APIBackoffConfig {
	if strings.EqualFold(c.AppEnv, "test") {
		return APIBackoffConfig{
			InitialInterval: 1 * time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2.0,
		}
	}
	maxInterval := c.MaxBackoff
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	return APIBackoffConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     maxInterval,
		Multiplier:      2.0,
	}
}
