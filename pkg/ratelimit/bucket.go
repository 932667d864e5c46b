// Package ratelimit implements the gateway's per-IP request throttle,
// per spec.md §4.9.
package ratelimit

import (
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RequestsPerWindow and Window together define the 60 req/60s allowance.
const (
	RequestsPerWindow = 60
	Window            = time.Minute
)

// staleAfter is how long an IP's bucket can sit idle before it is eligible
// for eviction by the probabilistic sweep.
const staleAfter = 10 * time.Minute

// sweepChance is the probability, on any given Allow call, that a sweep of
// stale buckets runs — avoiding a dedicated ticker goroutine for a
// best-effort cleanup, the same trade the teacher makes for its in-memory
// lookup tables rather than running a background janitor for every map.
const sweepChance = 0.01

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a mutex-guarded map of per-IP token buckets, matching the
// guarded-map discipline used throughout the gateway's other shared state
// (pkg/reliability.Registry, the payment gate's replay set).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// Allow reports whether ip may make another request right now, creating
// its bucket on first use.
func (l *Limiter) Allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(RequestsPerWindow)/Window.Seconds()), RequestsPerWindow)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	l.mu.Unlock()

	if rand.Float64() < sweepChance {
		l.sweep(now)
	}
	return allowed
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(l.buckets, ip)
		}
	}
}

// Len reports the number of buckets currently tracked, for tests.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// PeerIP extracts the rate-limited identity from r: the left-most
// X-Forwarded-For hop, falling back to RemoteAddr with any port stripped,
// per spec.md §4.9.
func PeerIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
