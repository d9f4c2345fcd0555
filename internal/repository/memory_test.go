package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	limiter := NewMemoryRateLimiter()
	limiter.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		allowed, err := limiter.CheckRateLimit(ctx, 42, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := limiter.CheckRateLimit(ctx, 42, 3, time.Minute)
	assert.False(t, allowed)

	clock = clock.Add(time.Minute)
	allowed, _ = limiter.CheckRateLimit(ctx, 42, 3, time.Minute)
	assert.True(t, allowed, "a new window starts once the old one expired")

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, 0, limiter.Sweep())
}
