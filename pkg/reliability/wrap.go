package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/morezero/capability-gateway/pkg/backend"
	"github.com/morezero/capability-gateway/pkg/gatewayerr"
)

// Attempt is one backend invocation. It returns the normalized response and
// any transport-level error; a non-2xx response is not itself a Go error —
// retryability is decided from resp.StatusCode, per backend.Retryable.
type Attempt func(ctx context.Context) (*backend.Response, error)

// Wrap is the sole seam the Dispatcher and Orchestrator use to call a
// backend: it consults the capability's circuit breaker, retries per the
// fixed delay schedule, and records the outcome. It returns the last
// response seen, the number of retries performed, and an error if the
// breaker short-circuited or every attempt failed.
func (r *Registry) Wrap(ctx context.Context, capabilityID string, attempt Attempt) (*backend.Response, int, error) {
	b := r.get(capabilityID)

	if !b.Allow(time.Now()) {
		return nil, 0, gatewayerr.New(gatewayerr.CircuitOpen,
			fmt.Sprintf("capability %s is temporarily unavailable", capabilityID))
	}

	var lastResp *backend.Response
	var lastErr error
	retries := 0

	for attemptIdx := 0; attemptIdx < MaxAttempts; attemptIdx++ {
		if attemptIdx > 0 {
			timer := time.NewTimer(delays[attemptIdx])
			canceled := false
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
				canceled = true
			}
			if canceled {
				break
			}
		}

		start := time.Now()
		resp, err := attempt(ctx)
		latency := time.Since(start)
		lastResp, lastErr = resp, err

		success := err == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300
		b.Record(time.Now(), success, latency)

		if success {
			return resp, retries, nil
		}
		if !backend.Retryable(resp, err) {
			break
		}
		retries++
	}

	if lastErr != nil {
		return nil, retries, fmt.Errorf("reliability: capability %s: %w", capabilityID, lastErr)
	}
	return lastResp, retries, backend.StatusError(capabilityID, lastResp)
}
