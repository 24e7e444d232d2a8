package fetcher

import (
	"context"
	"math"
	"time"

	"github.com/bl4ck0w1/otxsubs/pkg/models"
)

// RetryPolicy governs waits after a 429. MaxRetries of zero never gives up.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

func PolicyFromConfig(c models.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: c.MaxAttempts,
		Delay:      c.Delay,
		Multiplier: c.Multiplier,
		MaxDelay:   c.MaxDelay,
	}
}

func DefaultPolicy() RetryPolicy {
	return PolicyFromConfig(models.DefaultConfig().Retry)
}

func (p RetryPolicy) Exhausted(retriesDone int) bool {
	return p.MaxRetries > 0 && retriesDone >= p.MaxRetries
}

// Backoff is the wait before retry n, counting from 1.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.Delay) * math.Pow(mult, float64(max(n-1, 0)))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Clamp bounds a server-provided wait by MaxDelay.
func (p RetryPolicy) Clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
