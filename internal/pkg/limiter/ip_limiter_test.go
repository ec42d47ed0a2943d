package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestMiddlewareLimitsPerIP(t *testing.T) {
	limiter := NewIPRateLimiter("test", rate.Every(time.Hour), 2)
	defer limiter.Close()

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(remoteAddr string) int {
		r := httptest.NewRequest(http.MethodGet, "/login", nil)
		r.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	require.Equal(t, http.StatusNoContent, call("10.0.0.1:1000"))
	require.Equal(t, http.StatusNoContent, call("10.0.0.1:1001"))
	require.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))
	require.Equal(t, http.StatusNoContent, call("10.0.0.2:1000"))
	require.Equal(t, 2, limiter.Size())
}

func TestRemoveIdle(t *testing.T) {
	limiter := NewIPRateLimiter("test", rate.Every(time.Second), 1)
	defer limiter.Close()

	require.True(t, limiter.GetLimiter("10.0.0.1").Allow())
	limiter.GetLimiter("10.0.0.2")

	removed, remaining := limiter.removeIdle(time.Now())
	require.Equal(t, 1, removed)
	require.Equal(t, 1, remaining)

	removed, remaining = limiter.removeIdle(time.Now().Add(time.Minute))
	require.Equal(t, 1, removed)
	require.Zero(t, remaining)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	r.RemoteAddr = "192.0.2.7:5555"
	require.Equal(t, "192.0.2.7", ClientIP(r))

	r.RemoteAddr = "192.0.2.7"
	require.Equal(t, "192.0.2.7", ClientIP(r))

	r.RemoteAddr = ""
	require.Equal(t, "unknown_ip", ClientIP(r))
}
