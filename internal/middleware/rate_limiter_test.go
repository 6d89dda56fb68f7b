package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLimiterBurstAndRefill(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, 2, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.False(t, limiter.Allow("1.2.3.4"))
	assert.True(t, limiter.Allow("5.6.7.8"), "keys are limited independently")

	now = now.Add(time.Minute)
	assert.True(t, limiter.Allow("1.2.3.4"))
}

func TestClientLimiterEvictsIdleKeys(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, 1, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	now = now.Add(2 * time.Minute)
	limiter.Allow("b")

	assert.Len(t, limiter.clients, 1)
	assert.Contains(t, limiter.clients, "b")
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour, 1, time.Hour)
	handler := RateLimit(limiter, nil, "login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000"))
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, 1, time.Hour)
	handler := RateLimit(limiter, nil, "login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}

	assert.Equal(t, 1, allowed, "rotating X-Forwarded-For must not reset the bucket")
}

func TestClientIPWithoutTrustedProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	var proxies TrustedProxies
	assert.Equal(t, "192.168.1.5", proxies.ClientIP(req))
}

func TestClientIPBehindTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.5 ", ""})
	require.NoError(t, err)

	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{name: "untrusted peer", remote: "198.51.100.7:1000", forwarded: "203.0.113.9", want: "198.51.100.7"},
		{name: "single proxy", remote: "192.168.1.5:1000", forwarded: "203.0.113.9", want: "203.0.113.9"},
		{name: "spoofed leftmost hop", remote: "10.0.0.2:1000", forwarded: "1.1.1.1, 203.0.113.9, 10.0.0.3", want: "203.0.113.9"},
		{name: "no header", remote: "10.0.0.2:1000", want: "10.0.0.2"},
		{name: "garbage hop", remote: "10.0.0.2:1000", forwarded: "not-an-ip", want: "10.0.0.2"},
		{name: "all trusted", remote: "10.0.0.2:1000", forwarded: "10.0.0.9", want: "10.0.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, proxies.ClientIP(req))
		})
	}
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"10.0.0.0/33"})
	require.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	require.Error(t, err)
}
