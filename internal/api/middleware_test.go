package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookswap/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

func quotaServer(limiter *mockLimiter) *HTTPServer {
	logger := zerolog.Nop()
	return &HTTPServer{
		quota:   config.WriteQuotaConfig{Enabled: true, Limit: 3, Window: time.Minute},
		limiter: limiter,
		auth:    NewHTTPAuth(config.APIConfig{}),
		logger:  &logger,
	}
}

func TestQuotaMiddleware(t *testing.T) {
	limiter := new(mockLimiter)
	limiter.On("CheckRateLimit", mock.Anything, int64(7), 3, time.Minute).Return(false, nil).Once()
	limiter.On("CheckRateLimit", mock.Anything, int64(8), 3, time.Minute).Return(false, errors.New("redis down")).Once()

	h := quotaServer(limiter).quotaMiddleware(okHandler())
	call := func(method, user string) int {
		req := httptest.NewRequest(method, "/api/v1/requests", nil)
		if user != "" {
			req.Header.Set(userHeaderDefault, user)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, call(http.MethodPost, "7"))
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "8"), "limiter errors let the call through")
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "7"))
	assert.Equal(t, http.StatusOK, call(http.MethodPost, ""))
	limiter.AssertExpectations(t)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(requestIDHeader))
}
