package orchestrator

import (
	"context"
	"math"
	"time"

	"comms-orchestrator/internal/comms"
)

// Config is the retry and scheduling policy. Zero numeric fields take the
// defaults; Jitter is only on when set (DefaultConfig sets it).
type Config struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffBase    float64
	Jitter         bool
	AttemptTimeout time.Duration

	// Batching holds low-urgency sends for BatchWindow when the client
	// already has pending messages. It needs a Scheduler.
	Batching    bool
	BatchWindow time.Duration
}

func DefaultConfig() Config {
	c := Config{Jitter: true}
	c.ApplyDefaults()
	return c
}

func (c *Config) ApplyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 60 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 900 * time.Second
	}
	if c.BackoffBase <= 1 {
		c.BackoffBase = 5
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = 300 * time.Second
	}
}

// BaseDelay is the backoff before retrying after the given failed attempt
// (1-based), without jitter: min(initial * base^(attempt-1), max), doubled
// for rate limits and capped again.
func (c Config) BaseDelay(attempt int, cat comms.ErrorCategory) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.InitialDelay) * math.Pow(c.BackoffBase, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if cat == comms.CategoryRateLimit {
		d = math.Min(d*2, float64(c.MaxDelay))
	}
	return time.Duration(d)
}

// BackoffDelay is BaseDelay scaled by a factor in [0.8, 1.2] when jitter is
// enabled. Jitter is applied after the cap.
func (o *Orchestrator) BackoffDelay(attempt int, cat comms.ErrorCategory) time.Duration {
	d := o.cfg.BaseDelay(attempt, cat)
	if !o.cfg.Jitter {
		return d
	}
	return time.Duration(float64(d) * (0.8 + 0.4*o.randFloat()))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
