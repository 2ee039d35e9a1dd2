package scheduler

import "time"

// Config controls the scheduler interval and per-job timeout.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// EnabledJobs filters which jobs run. Empty means all jobs.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		JobTimeout:  30 * time.Second,
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
	return c
}
