package scheduler

import (
	"time"

	"github.com/smallbiznis/accessgate/internal/config"
)

// Config controls the background sweeps.
type Config struct {
	Interval      time.Duration
	BatchSize     int
	GracePeriod   time.Duration
	DriftInterval time.Duration
	EventDeadline time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:      30 * time.Second,
		BatchSize:     50,
		GracePeriod:   72 * time.Hour,
		DriftInterval: time.Hour,
		EventDeadline: 10 * time.Second,
	}
}

func ConfigFromApp(cfg config.Config) Config {
	return Config{
		Interval:      cfg.Sweep.Interval,
		BatchSize:     cfg.Sweep.BatchSize,
		GracePeriod:   cfg.Sweep.GracePeriod,
		DriftInterval: cfg.Sweep.DriftInterval,
		EventDeadline: cfg.Webhook.Deadline,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaults.GracePeriod
	}
	if c.DriftInterval <= 0 {
		c.DriftInterval = defaults.DriftInterval
	}
	if c.EventDeadline <= 0 {
		c.EventDeadline = defaults.EventDeadline
	}
	return c
}
