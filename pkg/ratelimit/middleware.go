package ratelimit

import (
	"encoding/json"
	"net/http"

	"github.com/morezero/capability-gateway/pkg/gatewayerr"
)

// exemptPaths are never throttled, per spec.md §4.9 — health checks and
// status polling must work even when a caller's own request volume has
// tripped the limiter.
var exemptPaths = map[string]bool{
	"/health": true,
	"/status": true,
}

// Middleware wraps next with a 60 req/60s per-IP throttle, returning a
// rate_limited 429 body for requests over the allowance.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !l.Allow(PeerIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(gatewayerr.Status(gatewayerr.RateLimited))
			json.NewEncoder(w).Encode(gatewayerr.New(gatewayerr.RateLimited, "rate limit exceeded, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
