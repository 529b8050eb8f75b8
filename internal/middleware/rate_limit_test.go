package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukepan/multi-rooms-chat-back/internal/middleware"
	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

func newTestThrottle(t *testing.T, rate string) *middleware.HTTPThrottle {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	throttle, err := middleware.NewHTTPThrottle(client, rate, utils.NewLogger("error"))
	require.NoError(t, err)
	return throttle
}

func passThrough() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHTTPThrottleAllowsUnderLimit(t *testing.T) {
	throttle := newTestThrottle(t, "2-M")
	handler := throttle.Middleware(passThrough())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.5:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestHTTPThrottleBlocksOverLimit(t *testing.T) {
	throttle := newTestThrottle(t, "1-M")
	handler := throttle.Middleware(passThrough())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.9:12345"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestHTTPThrottleIsPerClientIP(t *testing.T) {
	throttle := newTestThrottle(t, "1-M")
	handler := throttle.Middleware(passThrough())

	reqA := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	reqA.RemoteAddr = "203.0.113.1:1"
	recA := httptest.NewRecorder()
	handler.ServeHTTP(recA, reqA)
	assert.Equal(t, http.StatusOK, recA.Code)

	reqB := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	reqB.RemoteAddr = "203.0.113.2:1"
	recB := httptest.NewRecorder()
	handler.ServeHTTP(recB, reqB)
	assert.Equal(t, http.StatusOK, recB.Code)
}
