package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/internal/config"
)

func testRule(max int, window time.Duration) config.RateLimitRule {
	return config.RateLimitRule{Enabled: true, Max: max, Window: window}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(testRule(3, time.Minute))
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow("order.created|10.0.0.1"), "request %d", i)
	}
	require.False(t, rl.Allow("order.created|10.0.0.1"))

	// Other keys have their own buckets.
	require.True(t, rl.Allow("order.created|10.0.0.2"))
	require.True(t, rl.Allow("invoice.paid|10.0.0.1"))
}

func TestRateLimiter_RefillsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(testRule(1, 50*time.Millisecond))
	defer rl.Stop()

	require.True(t, rl.Allow("k"))
	require.False(t, rl.Allow("k"))

	time.Sleep(60 * time.Millisecond)
	require.True(t, rl.Allow("k"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(testRule(2, time.Minute))
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/order.created", nil)
		req.SetPathValue("triggerKey", "order.created")
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send("10.0.0.1:1234").Code)
	require.Equal(t, http.StatusOK, send("10.0.0.1:5678").Code)

	throttled := send("10.0.0.1:9999")
	require.Equal(t, http.StatusTooManyRequests, throttled.Code)
	require.JSONEq(t, `{"error":"rate limit exceeded","code":"RATE_LIMITED"}`, throttled.Body.String())

	// A different sender address is not throttled.
	require.Equal(t, http.StatusOK, send("10.0.0.2:1234").Code)
}

func TestRateLimiter_MiddlewareForwardedFor(t *testing.T) {
	rl := NewRateLimiter(testRule(1, time.Minute))
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/order.created", nil)
		req.SetPathValue("triggerKey", "order.created")
		req.RemoteAddr = "127.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send("203.0.113.7"))
	require.Equal(t, http.StatusTooManyRequests, send("203.0.113.7"))
	require.Equal(t, http.StatusOK, send("203.0.113.8"))
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	require.Equal(t, "192.0.2.1", clientAddr(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	require.Equal(t, "198.51.100.2", clientAddr(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.3")
	require.Equal(t, "203.0.113.3", clientAddr(req))
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(testRule(1000, time.Minute))
	defer rl.Stop()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				rl.Allow(fmt.Sprintf("key-%d", n%4))
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
