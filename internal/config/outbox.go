package config

import "time"

// OutboxConfig drives the relay worker that delivers eligibility tasks.
type OutboxConfig struct {
	Enabled      bool
	PollInterval time.Duration // pause between empty polls
	BatchSize    int           // tasks leased per poll
	LeaseTTL     time.Duration // a lease older than this is up for grabs again
	MaxAttempts  int           // the task is dead after this many failures
	BackoffBase  time.Duration // first retry delay, doubled per attempt
	BackoffMax   time.Duration
}

// LoadOutboxConfig reads the OUTBOX_* variables.
func LoadOutboxConfig() OutboxConfig {
	c := OutboxConfig{
		Enabled:      envBool("OUTBOX_ENABLED", true),
		PollInterval: envDur("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize:    envInt("OUTBOX_BATCH_SIZE", 20),
		LeaseTTL:     envDur("OUTBOX_LEASE_TTL", 30*time.Second),
		MaxAttempts:  envInt("OUTBOX_MAX_ATTEMPTS", 8),
		BackoffBase:  envDur("OUTBOX_BACKOFF_BASE", 2*time.Second),
		BackoffMax:   envDur("OUTBOX_BACKOFF_MAX", 5*time.Minute),
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	return c
}
