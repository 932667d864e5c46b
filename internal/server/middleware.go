package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// gzipResponseWriter wraps http.ResponseWriter so Write goes through a
// gzip.Writer transparently; handlers never need to know compression is
// happening.
type gzipResponseWriter struct {
	http.ResponseWriter
	gz *gzip.Writer
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.gz.Write(b)
}

// withCompression gzips response bodies for callers that advertise support,
// sparing agents from paying transfer cost on the larger /usage/timeline
// and /discover payloads. Skipped entirely when the caller doesn't send
// Accept-Encoding: gzip.
func withCompression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, gz: gz}, r)
	})
}

// withSecurityHeaders attaches the fixed set of defensive headers the
// gateway sends on every response, independent of CORS.
func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		h.Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

// withRequestID stamps every response with an X-Request-Id, generating one
// unless the caller already supplied one — agents chaining calls across
// retries can thread their own ID through for correlation.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// defaultAllowedOrigins is the closed CORS allow-list used when
// ALLOWED_ORIGINS is unset: the gateway's own dashboard domains plus
// localhost for local agent development, never a bare wildcard.
var defaultAllowedOrigins = []string{
	"https://*.capability-gateway.dev",
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// splitOrigins parses the comma-separated ALLOWED_ORIGINS config value into
// the slice rs/cors expects, defaulting to defaultAllowedOrigins when unset.
func splitOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultAllowedOrigins
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return defaultAllowedOrigins
	}
	return out
}
