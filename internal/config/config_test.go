package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KEY", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Cores)
	assert.Equal(t, "https://fishnet.lichess.ovh", cfg.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.False(t, cfg.AdminEnabled())
}

func TestResolveCores(t *testing.T) {
	cases := []struct {
		raw    string
		numCPU int
		want   int
	}{
		{"auto", 8, 8},
		{"", 4, 4},
		{"2", 8, 2},
		{"0", 8, 8},
		{"not-a-number", 8, 8},
	}
	for _, tc := range cases {
		cfg := Config{Cores: tc.raw}
		assert.Equal(t, tc.want, cfg.ResolveCores(tc.numCPU), "raw=%q", tc.raw)
	}
}

func TestParseBacklog(t *testing.T) {
	cfg := Config{UserBacklogRaw: "short", SystemBacklogRaw: "30s"}

	user, err := cfg.UserBacklog()
	require.NoError(t, err)
	assert.Equal(t, "short", user.Symbol())
	assert.True(t, user.Satisfied(0), "symbolic thresholds always join")

	sys, err := cfg.SystemBacklog()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, sys.Duration)
	assert.False(t, sys.Satisfied(5))
	assert.True(t, sys.Satisfied(31))
}

func TestParseBacklog_Unset(t *testing.T) {
	cfg := Config{}
	th, err := cfg.UserBacklog()
	require.NoError(t, err)
	assert.True(t, th.Satisfied(0), "unset threshold always joins")
}

func TestParseBacklog_Invalid(t *testing.T) {
	cfg := Config{UserBacklogRaw: "not-a-duration"}
	_, err := cfg.UserBacklog()
	assert.Error(t, err)
}

func TestGetAPIBackoffConfig_Test(t *testing.T) {
	cfg := Config{AppEnv: "test"}
	bo := cfg.GetAPIBackoffConfig()
	assert.Less(t, bo.MaxInterval, time.Second)
}
