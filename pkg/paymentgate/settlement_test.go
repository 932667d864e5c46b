package paymentgate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/morezero/capability-gateway/pkg/facilitator"
)

func TestSettlementQueueDrainsJobs(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(facilitator.SettleResponse{Success: true})
	}))
	defer srv.Close()

	q := newSettlementQueue(facilitator.New(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.run(ctx)

	for i := 0; i < 5; i++ {
		q.Notify("proof", facilitator.PaymentRequirements{Resource: "do:screenshot"})
	}
	q.Close()

	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("settlement_test - facilitator received %d settle calls, want 5", got)
	}
}

func TestSettlementQueueDropsWhenFull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(facilitator.SettleResponse{Success: true})
	}))
	defer srv.Close()

	q := newSettlementQueue(facilitator.New(srv.URL))
	// No workers started yet: every Notify past the buffer's capacity must
	// hit the non-blocking drop path rather than deadlocking the caller.
	for i := 0; i < settlementQueueSize+10; i++ {
		q.Notify("proof", facilitator.PaymentRequirements{Resource: "do:screenshot"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	q.Close()
}
