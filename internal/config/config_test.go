package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.HTTPPort)
	assert.Equal(t, "test-project", cfg.SeedProjectID)
	assert.Equal(t, int64(1_000_000), cfg.SeedProjectBalance)
	assert.Equal(t, 5*time.Minute, cfg.PayoutTTL)
	assert.Equal(t, 50*time.Millisecond, cfg.SettlementDelayMin)
	assert.Equal(t, 150*time.Millisecond, cfg.SettlementDelayMax)
	assert.Equal(t, 2*time.Second, cfg.GatewayTimeoutDelay)
	assert.Equal(t, 10, cfg.RateLimitMax)
	assert.Equal(t, time.Hour, cfg.RateLimitWindow)
	assert.False(t, cfg.StrictStatusTransitions)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadPrefixedAndBareNames(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PAYOUT_RATE_LIMIT_MAX", "3")
	t.Setenv("STRICT_STATUS_TRANSITIONS", "true")
	t.Setenv("RATE_LIMIT_WINDOW", "10m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 3, cfg.RateLimitMax)
	assert.True(t, cfg.StrictStatusTransitions)
	assert.Equal(t, 10*time.Minute, cfg.RateLimitWindow)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad_duration", env: map[string]string{"PAYOUT_TTL": "soon"}},
		{name: "zero_ttl", env: map[string]string{"PAYOUT_TTL": "0s"}},
		{name: "inverted_delays", env: map[string]string{"SETTLEMENT_DELAY_MIN": "2s", "SETTLEMENT_DELAY_MAX": "1s"}},
		{name: "short_admin_secret", env: map[string]string{"ADMIN_JWT_SECRET": "short"}},
		{name: "zero_rate_limit", env: map[string]string{"RATE_LIMIT_MAX": "0"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
