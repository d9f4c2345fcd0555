package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverRateLimiter(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	t.Run("PrimaryHealthy", func(t *testing.T) {
		primary := new(mockLimiter)
		fallback := new(mockLimiter)
		primary.On("CheckRateLimit", ctx, int64(1), 5, time.Minute).Return(true, nil).Once()

		r := NewFailoverRateLimiter(primary, fallback, &logger)
		allowed, err := r.CheckRateLimit(ctx, 1, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, r.Degraded())

		primary.AssertExpectations(t)
		fallback.AssertNotCalled(t, "CheckRateLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("FallsBackAndStaysDown", func(t *testing.T) {
		primary := new(mockLimiter)
		fallback := new(mockLimiter)
		primary.On("CheckRateLimit", ctx, int64(1), 5, time.Minute).Return(false, errors.New("connection refused")).Once()
		fallback.On("CheckRateLimit", ctx, int64(1), 5, time.Minute).Return(true, nil).Twice()

		r := NewFailoverRateLimiter(primary, fallback, &logger)

		allowed, err := r.CheckRateLimit(ctx, 1, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, r.Degraded())

		// within the recovery interval the primary is not retried
		_, err = r.CheckRateLimit(ctx, 1, 5, time.Minute)
		require.NoError(t, err)

		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("Recovers", func(t *testing.T) {
		primary := new(mockLimiter)
		fallback := new(mockLimiter)
		primary.On("CheckRateLimit", ctx, int64(1), 5, time.Minute).Return(true, nil).Once()

		r := NewFailoverRateLimiter(primary, fallback, &logger)
		r.isDown.Store(true)
		r.lastCheck.Store(time.Now().Add(-2 * recoveryInterval).UnixNano())

		allowed, err := r.CheckRateLimit(ctx, 1, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, r.Degraded())
		primary.AssertExpectations(t)
	})
}
