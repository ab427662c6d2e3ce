package middleware

import (
	"net/http"
	"strings"

	"github.com/xwell/ptgen/internal/metrics"
	"github.com/xwell/ptgen/internal/ratelimit"
)

// clientHeaders are consulted in order to identify the caller. Requests
// arriving without any of them share the single "unknown" bucket; clients
// behind proxies we do not recognize rate-limit each other. Known
// limitation, not worth guessing around.
var clientHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// ClientKey derives the rate-limit bucket for a request.
func ClientKey(r *http.Request) string {
	for _, h := range clientHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		// X-Forwarded-For may carry a proxy chain; the first hop is the client.
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return "unknown"
}

// RateLimit rejects over-quota clients with a 429 envelope.
func RateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Limited(ClientKey(r)) {
				metrics.RateLimited.Inc()
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later / 请求过于频繁，请稍后再试")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
