package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicyIsConstantAndUnbounded(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 60*time.Second, p.Backoff(1))
	assert.Equal(t, 60*time.Second, p.Backoff(50))
	assert.False(t, p.Exhausted(1000))
}

func TestPolicyBackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Delay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(400))

	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))

	assert.Equal(t, 5*time.Second, p.Clamp(time.Hour))
	assert.Equal(t, time.Second, p.Clamp(time.Second))
	assert.Zero(t, p.Clamp(-time.Second))
	assert.Zero(t, RetryPolicy{}.Backoff(3))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
