package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/sponsornet/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval       time.Duration
	JobTimeout        time.Duration
	BatchSize         int
	PaymentStaleAfter time.Duration
	// EnabledJobs limits which jobs run. Empty enables all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		JobTimeout:        30 * time.Second,
		BatchSize:         200,
		PaymentStaleAfter: 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	var jobs []string
	for _, job := range strings.Split(cfg.Scheduler.EnabledJobs, ",") {
		if job = strings.TrimSpace(job); job != "" {
			jobs = append(jobs, job)
		}
	}
	return Config{
		RunInterval:       cfg.Scheduler.Interval,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		BatchSize:         cfg.Scheduler.BatchSize,
		PaymentStaleAfter: cfg.Scheduler.PaymentStaleAfter,
		EnabledJobs:       jobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PaymentStaleAfter <= 0 {
		c.PaymentStaleAfter = defaults.PaymentStaleAfter
	}
	return c
}
