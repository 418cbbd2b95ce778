package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// RateLimit applies a sliding-window limit per client IP. Health, metrics
// and WebSocket routes are exempt. Limiter failures let the request through.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptFromLimit(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			d, err := limiter.Allow(r.Context(), "http:"+ClientIP(r), limit, window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				wait := d.RetryAfter
				if wait <= 0 {
					wait = window
				}
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
				reject(w, http.StatusTooManyRequests, domain.KindRateLimited, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func exemptFromLimit(path string) bool {
	switch path {
	case "/health", "/api/health", "/metrics", "/ws":
		return true
	}
	return false
}

// ClientIP is the first X-Forwarded-For hop when it parses as an IP, else
// the connection's remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
