package middleware

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

const rateLimitPrefix = "status_api:"

// RateLimit admits at most limit requests per window per client through the
// shared limiter, so several bot replicas behind one address enforce a
// single budget. IPv6 clients are bucketed by /64. The limiter failing
// lets the request through.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds() / float64(max(limit, 1)))))
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), rateLimitPrefix+clientBucket(r), limit, window)
			if err == nil && !allowed {
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientBucket is the first parseable address of X-Forwarded-For, then
// X-Real-IP, then the peer address.
func clientBucket(r *http.Request) string {
	candidates := []string{
		strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-For"), ",")[0]),
		strings.TrimSpace(r.Header.Get("X-Real-IP")),
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		candidates = append(candidates, host)
	}
	for _, c := range candidates {
		addr, err := netip.ParseAddr(c)
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		if addr.Is6() {
			if p, err := addr.Prefix(64); err == nil {
				return p.String()
			}
		}
		return addr.String()
	}
	return r.RemoteAddr
}
