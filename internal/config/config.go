package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort string
	LogLevel string

	SeedProjectID      string
	SeedProjectBalance int64

	PayoutTTL           time.Duration
	SettlementDelayMin  time.Duration
	SettlementDelayMax  time.Duration
	GatewayTimeoutDelay time.Duration
	RateLimitMax        int
	RateLimitWindow     time.Duration

	StrictStatusTransitions         bool
	LegacyGlobalIdempotency         bool
	LegacyUnknownProjectZeroBalance bool

	PublicRateLimitRPS int
	AdminJWTSecret     string
	CallbackHMACKey    string

	// RedisURL and DatabaseURL are optional; empty disables the backing component.
	RedisURL    string
	DatabaseURL string

	CallbackPollInterval   time.Duration
	ReconciliationInterval time.Duration
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "PAYOUT_PORT")
	bindEnv(v, "log_level", "LOG_LEVEL", "PAYOUT_LOG_LEVEL")
	bindEnv(v, "seed_project_id", "SEED_PROJECT_ID", "PAYOUT_SEED_PROJECT_ID")
	bindEnv(v, "seed_project_balance", "SEED_PROJECT_BALANCE", "PAYOUT_SEED_PROJECT_BALANCE")
	bindEnv(v, "payout_ttl", "PAYOUT_TTL", "PAYOUT_PAYOUT_TTL")
	bindEnv(v, "settlement_delay_min", "SETTLEMENT_DELAY_MIN", "PAYOUT_SETTLEMENT_DELAY_MIN")
	bindEnv(v, "settlement_delay_max", "SETTLEMENT_DELAY_MAX", "PAYOUT_SETTLEMENT_DELAY_MAX")
	bindEnv(v, "gateway_timeout_delay", "GATEWAY_TIMEOUT_DELAY", "PAYOUT_GATEWAY_TIMEOUT_DELAY")
	bindEnv(v, "rate_limit_max", "RATE_LIMIT_MAX", "PAYOUT_RATE_LIMIT_MAX")
	bindEnv(v, "rate_limit_window", "RATE_LIMIT_WINDOW", "PAYOUT_RATE_LIMIT_WINDOW")
	bindEnv(v, "strict_status_transitions", "STRICT_STATUS_TRANSITIONS", "PAYOUT_STRICT_STATUS_TRANSITIONS")
	bindEnv(v, "legacy_global_idempotency", "LEGACY_GLOBAL_IDEMPOTENCY", "PAYOUT_LEGACY_GLOBAL_IDEMPOTENCY")
	bindEnv(v, "legacy_unknown_project_zero_balance", "LEGACY_UNKNOWN_PROJECT_ZERO_BALANCE", "PAYOUT_LEGACY_UNKNOWN_PROJECT_ZERO_BALANCE")
	bindEnv(v, "public_rate_limit_rps", "PUBLIC_RATE_LIMIT_RPS", "PAYOUT_PUBLIC_RATE_LIMIT_RPS")
	bindEnv(v, "admin_jwt_secret", "ADMIN_JWT_SECRET", "PAYOUT_ADMIN_JWT_SECRET")
	bindEnv(v, "callback_hmac_key", "CALLBACK_HMAC_KEY", "PAYOUT_CALLBACK_HMAC_KEY")
	bindEnv(v, "redis_url", "REDIS_URL", "PAYOUT_REDIS_URL")
	bindEnv(v, "database_url", "DATABASE_URL", "PAYOUT_DATABASE_URL")
	bindEnv(v, "callback_poll_interval", "CALLBACK_POLL_INTERVAL", "PAYOUT_CALLBACK_POLL_INTERVAL")
	bindEnv(v, "reconciliation_interval", "RECONCILIATION_INTERVAL", "PAYOUT_RECONCILIATION_INTERVAL")

	v.SetDefault("port", "3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("seed_project_id", "test-project")
	v.SetDefault("seed_project_balance", 1_000_000)
	v.SetDefault("payout_ttl", "5m")
	v.SetDefault("settlement_delay_min", "50ms")
	v.SetDefault("settlement_delay_max", "150ms")
	v.SetDefault("gateway_timeout_delay", "2s")
	v.SetDefault("rate_limit_max", 10)
	v.SetDefault("rate_limit_window", "1h")
	v.SetDefault("strict_status_transitions", false)
	v.SetDefault("legacy_global_idempotency", false)
	v.SetDefault("legacy_unknown_project_zero_balance", false)
	v.SetDefault("public_rate_limit_rps", 100)
	v.SetDefault("admin_jwt_secret", "")
	v.SetDefault("callback_hmac_key", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("database_url", "")
	v.SetDefault("callback_poll_interval", "1s")
	v.SetDefault("reconciliation_interval", "1m")

	durations := map[string]*time.Duration{}
	cfg := &Config{
		HTTPPort:                        v.GetString("port"),
		LogLevel:                        v.GetString("log_level"),
		SeedProjectID:                   strings.TrimSpace(v.GetString("seed_project_id")),
		SeedProjectBalance:              v.GetInt64("seed_project_balance"),
		RateLimitMax:                    v.GetInt("rate_limit_max"),
		StrictStatusTransitions:         v.GetBool("strict_status_transitions"),
		LegacyGlobalIdempotency:         v.GetBool("legacy_global_idempotency"),
		LegacyUnknownProjectZeroBalance: v.GetBool("legacy_unknown_project_zero_balance"),
		PublicRateLimitRPS:              max(v.GetInt("public_rate_limit_rps"), 1),
		AdminJWTSecret:                  v.GetString("admin_jwt_secret"),
		CallbackHMACKey:                 v.GetString("callback_hmac_key"),
		RedisURL:                        strings.TrimSpace(v.GetString("redis_url")),
		DatabaseURL:                     strings.TrimSpace(v.GetString("database_url")),
	}
	durations["payout_ttl"] = &cfg.PayoutTTL
	durations["settlement_delay_min"] = &cfg.SettlementDelayMin
	durations["settlement_delay_max"] = &cfg.SettlementDelayMax
	durations["gateway_timeout_delay"] = &cfg.GatewayTimeoutDelay
	durations["rate_limit_window"] = &cfg.RateLimitWindow
	durations["callback_poll_interval"] = &cfg.CallbackPollInterval
	durations["reconciliation_interval"] = &cfg.ReconciliationInterval

	for key, dst := range durations {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", strings.ToUpper(key), err)
		}
		*dst = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PayoutTTL <= 0 {
		return fmt.Errorf("PAYOUT_TTL must be positive")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.SettlementDelayMin < 0 || c.SettlementDelayMax < c.SettlementDelayMin {
		return fmt.Errorf("SETTLEMENT_DELAY_MIN must be >= 0 and <= SETTLEMENT_DELAY_MAX")
	}
	if c.GatewayTimeoutDelay < 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT_DELAY must not be negative")
	}
	if c.SeedProjectBalance < 0 {
		return fmt.Errorf("SEED_PROJECT_BALANCE must not be negative")
	}
	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < 32 {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 characters")
	}
	if c.CallbackPollInterval <= 0 || c.ReconciliationInterval <= 0 {
		return fmt.Errorf("CALLBACK_POLL_INTERVAL and RECONCILIATION_INTERVAL must be positive")
	}
	return nil
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
