package relay

import (
	"time"

	"github.com/smallbiznis/accessgate/internal/config"
)

// Config controls the notification relay loop.
type Config struct {
	Endpoint     string
	BatchSize    int
	PollInterval time.Duration
	Timeout      time.Duration
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    50,
		PollInterval: 5 * time.Second,
		Timeout:      5 * time.Second,
		MaxAttempts:  10,
	}
}

func ConfigFromApp(cfg config.Config) Config {
	return Config{
		Endpoint:     cfg.Notification.Endpoint,
		BatchSize:    cfg.Notification.BatchSize,
		PollInterval: cfg.Notification.PollInterval,
		Timeout:      cfg.Notification.Timeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	return c
}
