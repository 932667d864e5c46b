package paymentgate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/capability-gateway/pkg/facilitator"
)

// settlementWorkers bounds the fan-out of settlement notifications, per
// spec.md §5 — a fixed worker pool rather than a goroutine per call.
const settlementWorkers = 4

// settlementQueueSize is the buffer depth before Notify starts dropping
// jobs; settlement is fire-and-forget but still must not grow unbounded.
const settlementQueueSize = 256

type settlementJob struct {
	proof        string
	requirements facilitator.PaymentRequirements
}

// settlementQueue drains settlement notifications on a fixed worker pool,
// decoupling them from the request path per spec.md §4.2.
type settlementQueue struct {
	client *facilitator.Client
	ch     chan settlementJob
	wg     sync.WaitGroup
}

func newSettlementQueue(client *facilitator.Client) *settlementQueue {
	return &settlementQueue{
		client: client,
		ch:     make(chan settlementJob, settlementQueueSize),
	}
}

// run starts the worker pool and returns immediately; the workers exit once
// Close closes ch and they have drained it.
func (q *settlementQueue) run(ctx context.Context) {
	for i := 0; i < settlementWorkers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.ch {
				q.settle(ctx, job)
			}
		}()
	}
}

func (q *settlementQueue) settle(ctx context.Context, job settlementJob) {
	resp, err := q.client.Settle(ctx, job.proof, job.requirements)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - settlement failed for resource %s: %v", logPrefix, job.requirements.Resource, err))
		return
	}
	if !resp.Success {
		slog.Warn(fmt.Sprintf("%s - settlement rejected for resource %s: %s", logPrefix, job.requirements.Resource, resp.Error))
	}
}

// Notify enqueues a settlement job. If the queue is full, the job is
// dropped and logged rather than blocking the caller's response — a
// missed settlement never affects what was already billed.
func (q *settlementQueue) Notify(proof string, requirements facilitator.PaymentRequirements) {
	select {
	case q.ch <- settlementJob{proof: proof, requirements: requirements}:
	default:
		slog.Warn(fmt.Sprintf("%s - settlement queue full, dropping notification for %s", logPrefix, requirements.Resource))
	}
}

// Close stops accepting new jobs and blocks until in-flight workers drain.
func (q *settlementQueue) Close() {
	close(q.ch)
	q.wg.Wait()
}
