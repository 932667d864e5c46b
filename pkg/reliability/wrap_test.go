package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morezero/capability-gateway/pkg/backend"
)

func TestWrapSucceedsWithoutRetry(t *testing.T) {
	r := NewRegistry()
	calls := 0
	resp, retries, err := r.Wrap(context.Background(), "cap-a", func(ctx context.Context) (*backend.Response, error) {
		calls++
		return &backend.Response{StatusCode: 200}, nil
	})
	if err != nil {
		t.Fatalf("wrap_test - unexpected error: %v", err)
	}
	if retries != 0 {
		t.Errorf("wrap_test - retries = %d, want 0", retries)
	}
	if calls != 1 {
		t.Errorf("wrap_test - calls = %d, want 1", calls)
	}
	if resp.StatusCode != 200 {
		t.Errorf("wrap_test - StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestWrapRetriesOn5xxThenSucceeds(t *testing.T) {
	r := NewRegistry()
	calls := 0
	_, retries, err := r.Wrap(context.Background(), "cap-b", func(ctx context.Context) (*backend.Response, error) {
		calls++
		if calls < 3 {
			return &backend.Response{StatusCode: 500}, nil
		}
		return &backend.Response{StatusCode: 200}, nil
	})
	if err != nil {
		t.Fatalf("wrap_test - unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("wrap_test - calls = %d, want 3", calls)
	}
	if retries != 2 {
		t.Errorf("wrap_test - retries = %d, want 2", retries)
	}
}

func TestWrapNeverRetries4xx(t *testing.T) {
	r := NewRegistry()
	calls := 0
	_, retries, err := r.Wrap(context.Background(), "cap-c", func(ctx context.Context) (*backend.Response, error) {
		calls++
		return &backend.Response{StatusCode: 404}, nil
	})
	if err == nil {
		t.Fatal("wrap_test - expected error for persistent 404")
	}
	if calls != 1 {
		t.Errorf("wrap_test - calls = %d, want 1 (no retry on 4xx)", calls)
	}
	if retries != 0 {
		t.Errorf("wrap_test - retries = %d, want 0", retries)
	}
}

func TestWrapOpensCircuitAfterFailureThreshold(t *testing.T) {
	r := NewRegistry()
	failer := func(ctx context.Context) (*backend.Response, error) {
		return nil, errors.New("boom")
	}

	// 5 calls, each itself retries 3 times before giving up: every attempt
	// records a failure outcome, so the first call records 4 failures and
	// the second call's first attempt reaches the minimum volume and opens
	// the breaker; the remaining calls fail fast with circuit_open.
	for i := 0; i < minVolume; i++ {
		if _, _, err := r.Wrap(context.Background(), "cap-d", failer); err == nil {
			t.Fatalf("wrap_test - call %d: expected failure", i)
		}
	}

	_, _, err := r.Wrap(context.Background(), "cap-d", func(ctx context.Context) (*backend.Response, error) {
		t.Fatal("wrap_test - backend should not be called while circuit is open")
		return nil, nil
	})
	if err == nil {
		t.Fatal("wrap_test - expected circuit_open error")
	}
}

func TestWrapHalfOpenProbeCloses(t *testing.T) {
	b := newBreaker()
	now := time.Now()
	for i := 0; i < minVolume; i++ {
		b.Record(now, false, time.Millisecond)
	}
	if b.state != Open {
		t.Fatalf("wrap_test - expected Open after threshold, got %s", b.state)
	}
	if b.Allow(now) {
		t.Fatal("wrap_test - should not allow within half-open backoff")
	}
	later := now.Add(halfOpenBackoff + time.Second)
	if !b.Allow(later) {
		t.Fatal("wrap_test - should allow one probe after backoff elapses")
	}
	b.Record(later, true, time.Millisecond)
	if b.state != Closed {
		t.Fatalf("wrap_test - expected Closed after successful probe, got %s", b.state)
	}
}
