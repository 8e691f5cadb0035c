package middleware

import (
	"net"
	"net/http"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/ratelimit"
)

// ClientIP resolves the caller's address, honoring the first entry of
// X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over the caller's window with 429. A
// limiter backend failure lets the request through; checkout must not
// depend on the limiter store being up.
func RateLimit(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				zlog.Error().Err(err).Str("ip", ip).Str("code", "rate_limit_unavailable").
					Msg("rate limiter check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				respondError(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
