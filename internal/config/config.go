package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ACCESSGATE"

var (
	ErrMissingSigningSecret = errors.New("missing_signing_secret")
	ErrInvalidRateLimit     = errors.New("invalid_rate_limit")
	ErrInvalidBackend       = errors.New("invalid_rate_limit_backend")
	ErrInvalidDatabase      = errors.New("invalid_database_driver")
	ErrInvalidRetryBudget   = errors.New("invalid_retry_budget")
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Reconcile    ReconcileConfig    `mapstructure:"reconcile"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Waitlist     WaitlistConfig     `mapstructure:"waitlist"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Notification NotificationConfig `mapstructure:"notification"`
	Sweep        SweepConfig        `mapstructure:"sweep"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPAddr    string `mapstructure:"http_addr"`
	NodeID      int64  `mapstructure:"node_id"`
	// TrustedProxies lists the proxy CIDRs whose forwarding headers are read
	// for the client IP. Empty means only the peer address counts.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WebhookConfig struct {
	Provider        string        `mapstructure:"provider"`
	SigningSecret   string        `mapstructure:"signing_secret"`
	SignatureHeader string        `mapstructure:"signature_header"`
	Tolerance       time.Duration `mapstructure:"tolerance"`
	Deadline        time.Duration `mapstructure:"deadline"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type LedgerConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Lease       time.Duration `mapstructure:"lease"`
}

type ReconcileConfig struct {
	MaxCASAttempts int `mapstructure:"max_cas_attempts"`
}

type DispatchConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

type WaitlistConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RateLimitConfig struct {
	Backend         string        `mapstructure:"backend"`
	Limit           int           `mapstructure:"limit"`
	Window          time.Duration `mapstructure:"window"`
	CompactInterval time.Duration `mapstructure:"compact_interval"`
	FailOpen        bool          `mapstructure:"fail_open"`
}

type NotificationConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type SweepConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	DriftInterval time.Duration `mapstructure:"drift_interval"`
}

type ProviderConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	ExporterEndpoint string  `mapstructure:"exporter_endpoint"`
	ExporterProtocol string  `mapstructure:"exporter_protocol"`
	SamplingRatio    float64 `mapstructure:"sampling_ratio"`
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.App.Environment), "production")
}

// Load reads defaults, an optional config file and ACCESSGATE_* environment variables.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "accessgate")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.http_addr", ":8080")
	v.SetDefault("app.node_id", 1)
	v.SetDefault("app.trusted_proxies", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("webhook.provider", "stripe")
	v.SetDefault("webhook.signing_secret", "")
	v.SetDefault("webhook.signature_header", "Stripe-Signature")
	v.SetDefault("webhook.tolerance", 5*time.Minute)
	v.SetDefault("webhook.deadline", 10*time.Second)
	v.SetDefault("webhook.max_body_bytes", 1<<20)

	v.SetDefault("ledger.max_attempts", 3)
	v.SetDefault("ledger.lease", 30*time.Second)

	v.SetDefault("reconcile.max_cas_attempts", 3)

	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.base_backoff", 500*time.Millisecond)
	v.SetDefault("dispatch.max_backoff", 5*time.Second)

	v.SetDefault("waitlist.enabled", true)

	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.limit", 5)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.compact_interval", 5*time.Minute)
	v.SetDefault("ratelimit.fail_open", true)

	v.SetDefault("notification.endpoint", "")
	v.SetDefault("notification.timeout", 5*time.Second)
	v.SetDefault("notification.poll_interval", 5*time.Second)
	v.SetDefault("notification.batch_size", 50)

	v.SetDefault("sweep.interval", 30*time.Second)
	v.SetDefault("sweep.batch_size", 50)
	v.SetDefault("sweep.grace_period", 72*time.Hour)
	v.SetDefault("sweep.drift_interval", time.Hour)

	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.cache_ttl", 5*time.Minute)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter_endpoint", "")
	v.SetDefault("tracing.exporter_protocol", "grpc")
	v.SetDefault("tracing.sampling_ratio", 0.1)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Webhook.SigningSecret) == "" {
		return ErrMissingSigningSecret
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		return ErrInvalidRateLimit
	}
	switch strings.ToLower(strings.TrimSpace(c.RateLimit.Backend)) {
	case "memory", "redis":
	default:
		return ErrInvalidBackend
	}
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "postgres", "sqlite":
	default:
		return ErrInvalidDatabase
	}
	if c.Ledger.MaxAttempts <= 0 || c.Dispatch.MaxAttempts <= 0 || c.Reconcile.MaxCASAttempts <= 0 {
		return ErrInvalidRetryBudget
	}
	if c.Webhook.Tolerance <= 0 || c.Webhook.Deadline <= 0 {
		return ErrInvalidRetryBudget
	}
	return nil
}
