package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth("secret", "/api/health")(okHandler)

	cases := []struct {
		name  string
		setup func(r *http.Request)
		path  string
		want  int
	}{
		{"missing", func(*http.Request) {}, "/api/status", http.StatusUnauthorized},
		{"wrong key", func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, "/api/status", http.StatusUnauthorized},
		{"header key", func(r *http.Request) { r.Header.Set("X-API-Key", "secret") }, "/api/status", http.StatusOK},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }, "/api/status", http.StatusOK},
		{"query key", func(*http.Request) {}, "/ws?api_key=secret", http.StatusOK},
		{"public path", func(*http.Request) {}, "/api/health", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.path, nil)
			tc.setup(r)
			assert.Equal(t, tc.want, serve(h, r).Code)
		})
	}

	rotated := Auth("old, new")(okHandler)
	for _, key := range []string{"old", "new"} {
		r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		r.Header.Set("X-API-Key", key)
		assert.Equal(t, http.StatusOK, serve(rotated, r).Code, key)
	}
	rec := serve(rotated, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.JSONEq(t, `{"error":"missing api key"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	open := Auth("")(okHandler)
	assert.Equal(t, http.StatusOK, serve(open, httptest.NewRequest(http.MethodGet, "/api/status", nil)).Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000/", "https://*.sniper.example"})(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	rec := serve(h, r)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"), "simple request")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), RequestIDHeader)

	r = httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	r.Header.Set("Origin", "https://dash.sniper.example")
	r.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = serve(h, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.sniper.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	for _, origin := range []string{"http://evil.example", "https://sniper.example", "http://dash.sniper.example"} {
		r = httptest.NewRequest(http.MethodGet, "/api/status", nil)
		r.Header.Set("Origin", origin)
		assert.Empty(t, serve(h, r).Header().Get("Access-Control-Allow-Origin"), origin)
	}

	r = httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	assert.Equal(t, http.StatusNoContent, serve(h, r).Code)
}

func TestCORSEmptyAllowsAll(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set("Origin", "http://anywhere.example")
	rec := serve(CORS(nil)(okHandler), r)
	assert.Equal(t, "http://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingQuietPaths(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := Logging(logger, "/metrics")(okHandler)

	serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Empty(t, buf.String())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Contains(t, buf.String(), "path=/api/status")
	assert.Contains(t, buf.String(), "status=200")
	assert.Contains(t, buf.String(), "request_id="+rec.Header().Get(RequestIDHeader))
}

func TestLoggingRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen string
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	inbound := "8d7f7c1e-5c1b-4a57-9e36-2f0c6b0d8a11"
	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set(RequestIDHeader, inbound)
	rec := serve(h, r)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, inbound, seen)
	assert.Equal(t, inbound, rec.Header().Get(RequestIDHeader))

	r = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set(RequestIDHeader, "not-a-uuid\nforged=1")
	serve(h, r)
	assert.NotEqual(t, "not-a-uuid\nforged=1", seen)
	assert.Len(t, seen, 36)
}

type countingLimiter struct {
	allowed int
	err     error
	keys    []string
}

func (c *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	c.keys = append(c.keys, key)
	if c.err != nil {
		return false, c.err
	}
	c.allowed++
	return c.allowed <= limit, nil
}

func (c *countingLimiter) Wait(context.Context, string, int, time.Duration) error { return nil }

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{}
	h := RateLimit(lim, 2, time.Minute)(okHandler)

	codes := make([]int, 0, 3)
	for range 3 {
		r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		codes = append(codes, serve(h, r).Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	rec := serve(h, r)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	require.NotEmpty(t, lim.keys)
	assert.Equal(t, "status_api:10.0.0.1", lim.keys[0])

	failing := RateLimit(&countingLimiter{err: errors.New("redis down")}, 1, time.Minute)(okHandler)
	assert.Equal(t, http.StatusOK, serve(failing, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	disabled := RateLimit(nil, 10, time.Minute)(okHandler)
	assert.Equal(t, http.StatusOK, serve(disabled, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestClientBucket(t *testing.T) {
	cases := []struct {
		name string
		xff  string
		peer string
		want string
	}{
		{"forwarded", "203.0.113.9, 10.0.0.2", "10.0.0.2:443", "203.0.113.9"},
		{"garbage header falls back to peer", "unknown", "192.0.2.4:5000", "192.0.2.4"},
		{"ipv6 bucketed", "", "[2001:db8:1:2:aaaa::1]:443", "2001:db8:1:2::/64"},
		{"mapped v4", "::ffff:198.51.100.7", "", "198.51.100.7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.peer
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			assert.Equal(t, tc.want, clientBucket(r))
		})
	}
}

func TestRateLimitDisabledAllows(t *testing.T) {
	disabled := RateLimit(nil, 10, time.Minute)(okHandler)
	assert.Equal(t, http.StatusOK, serve(disabled, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}
