// Package reliability wraps backend calls with the retry policy and
// per-capability circuit breaker of spec.md §4.4.
package reliability

import (
	"sync"
	"time"
)

// CircuitState is the breaker's enumerated state per spec.md §3.
type CircuitState string

const (
	Closed   CircuitState = "closed"
	Open     CircuitState = "open"
	HalfOpen CircuitState = "half_open"
)

const (
	window           = 5 * time.Minute
	minVolume        = 5
	failureThreshold = 0.5
	halfOpenBackoff  = 30 * time.Second
)

type outcome struct {
	at      time.Time
	success bool
}

// breaker holds one capability's rolling outcome window and derived state.
// A single mutex guards both the window and the open/half-open flag so a
// reader never observes one without the other, per spec.md §5 point 2.
type breaker struct {
	mu sync.Mutex

	outcomes []outcome
	state    CircuitState
	openedAt time.Time

	halfOpenProbeInFlight bool

	successes   int64
	failures    int64
	totalCalls  int64
	totalLatency time.Duration
}

func newBreaker() *breaker {
	return &breaker{state: Closed}
}

// Allow reports whether a call may proceed, and if the breaker is
// transitioning open->half-open, marks the admitted probe so a concurrent
// caller does not also get admitted.
func (b *breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if now.Sub(b.openedAt) < halfOpenBackoff {
			return false
		}
		b.state = HalfOpen
		b.halfOpenProbeInFlight = true
		return true
	case HalfOpen:
		if b.halfOpenProbeInFlight {
			return false
		}
		b.halfOpenProbeInFlight = true
		return true
	default:
		return true
	}
}

// Record logs a call outcome and updates the breaker's state.
func (b *breaker) Record(now time.Time, success bool, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	b.totalLatency += latency
	if success {
		b.successes++
	} else {
		b.failures++
	}

	if b.state == HalfOpen {
		b.halfOpenProbeInFlight = false
		if success {
			b.state = Closed
			b.outcomes = nil
		} else {
			b.state = Open
			b.openedAt = now
			b.outcomes = nil
		}
		return
	}

	b.outcomes = append(b.outcomes, outcome{at: now, success: success})
	b.outcomes = evict(b.outcomes, now)

	if len(b.outcomes) < minVolume {
		return
	}
	var fails int
	for _, o := range b.outcomes {
		if !o.success {
			fails++
		}
	}
	if float64(fails)/float64(len(b.outcomes)) >= failureThreshold {
		b.state = Open
		b.openedAt = now
		b.outcomes = nil
	}
}

func evict(outcomes []outcome, now time.Time) []outcome {
	cutoff := now.Add(-window)
	kept := outcomes[:0]
	for _, o := range outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	return kept
}

// Snapshot is the observable state of one capability's breaker, for /status.
type Snapshot struct {
	State        CircuitState  `json:"state"`
	Successes    int64         `json:"successes"`
	Failures     int64         `json:"failures"`
	TotalCalls   int64         `json:"totalCalls"`
	AvgLatencyMs float64       `json:"avgLatencyMs"`
	OpenedAt     *time.Time    `json:"openedAt,omitempty"`
}

func (b *breaker) snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	avg := float64(0)
	if b.totalCalls > 0 {
		avg = float64(b.totalLatency.Milliseconds()) / float64(b.totalCalls)
	}
	s := Snapshot{
		State:        b.state,
		Successes:    b.successes,
		Failures:     b.failures,
		TotalCalls:   b.totalCalls,
		AvgLatencyMs: avg,
	}
	if b.state == Open || b.state == HalfOpen {
		t := b.openedAt
		s.OpenedAt = &t
	}
	return s
}
