// Package paymentgate verifies x402 payment proofs with an external
// facilitator, enforces replay protection and the test-bypass allow-list,
// and settles successful calls, per spec.md §4.2.
package paymentgate

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/morezero/capability-gateway/pkg/facilitator"
	"github.com/morezero/capability-gateway/pkg/gatewayerr"
	"github.com/morezero/capability-gateway/pkg/money"
)

const logPrefix = "paymentgate:gate"

// x402Version is the only protocol version the gateway speaks, per
// spec.md §6.
const x402Version = 2

// Config configures one Gate.
type Config struct {
	Facilitator    *facilitator.Client
	FacilitatorURL string
	PayoutAddress  string
	Network        string
	Asset          string
	Scheme         string
	BypassKey      string
	AllowList      PeerAllowList
}

// Gate is the gateway's x402 payment gate. One Gate is constructed once in
// internal/server and threaded through request handlers, the same way the
// teacher threads its single *registry.Registry.
type Gate struct {
	cfg    Config
	replay *replaySet
	queue  *settlementQueue
}

// New creates a Gate. Call Run to start its background sweep and
// settlement workers.
func New(cfg Config) *Gate {
	return &Gate{
		cfg:    cfg,
		replay: newReplaySet(),
		queue:  newSettlementQueue(cfg.Facilitator),
	}
}

// Run starts the replay-set sweep and settlement worker pool. The sweep
// stops when ctx is canceled, mirroring the teacher's pattern of tying
// background jobs to the server's root context rather than detaching them;
// the settlement workers pass ctx to each settle call and exit only when
// Close drains the queue.
func (g *Gate) Run(ctx context.Context) {
	done := ctx.Done()
	go g.replay.sweep(done)
	g.queue.run(ctx)
}

// Close drains the settlement queue. Call after the HTTP server has
// stopped accepting new requests.
func (g *Gate) Close() {
	g.queue.Close()
}

// Proof carries the verified payment's identity forward to settlement.
type Proof struct {
	Raw          string
	ID           string
	Requirements facilitator.PaymentRequirements
}

// PaymentRequiredBody is the exact shape of a 402 response, per spec.md §6.
type PaymentRequiredBody struct {
	X402Version int                                 `json:"x402Version"`
	Accepts     []facilitator.PaymentRequirements    `json:"accepts"`
	FacilitatorURL string                            `json:"facilitatorUrl"`
	Error       *string                             `json:"error"`
}

// Requirements builds the PaymentRequirements quoted for a cost in micros:
// the single-call cost, or the summed cost of a chain plan. Amount is always
// a base-10 micro-unit integer string — the same shape discovery.normalize
// parses off an upstream facilitator's own Accepts entry — never a
// money.Format dollar string.
func (g *Gate) Requirements(cost money.Micros, resource, description string) facilitator.PaymentRequirements {
	return facilitator.PaymentRequirements{
		Scheme:            g.cfg.Scheme,
		Network:           g.cfg.Network,
		Amount:            strconv.FormatInt(int64(cost), 10),
		Asset:             g.cfg.Asset,
		Resource:          resource,
		Description:       description,
		PayTo:             g.cfg.PayoutAddress,
		MaxTimeoutSeconds: 300,
	}
}

// PaymentRequired builds the 402 response body naming requirements.
func (g *Gate) PaymentRequired(requirements facilitator.PaymentRequirements) PaymentRequiredBody {
	return PaymentRequiredBody{
		X402Version:    x402Version,
		Accepts:        []facilitator.PaymentRequirements{requirements},
		FacilitatorURL: g.cfg.FacilitatorURL,
		Error:          nil,
	}
}

// bypassHeader/paymentHeader/legacyPaymentHeader/testKeyHeader name the
// inbound headers the gate inspects, per spec.md §6.
const (
	paymentHeader       = "X-Payment"
	legacyPaymentHeader = "Payment-Signature"
	testKeyHeader       = "X-Test-Key"
)

// Verify runs the spec.md §4.2 algorithm against r for a call costing
// requirements.Amount. A nil error and non-nil Proof means the caller may
// proceed; a nil Proof and nil error never happens. On failure, the
// returned *gatewayerr.Error carries the right HTTP status and code.
func (g *Gate) Verify(ctx context.Context, r *http.Request, requirements facilitator.PaymentRequirements) (*Proof, error) {
	if g.bypassed(r) {
		return &Proof{Requirements: requirements}, nil
	}

	proof := r.Header.Get(paymentHeader)
	if proof == "" {
		proof = r.Header.Get(legacyPaymentHeader)
	}
	if proof == "" {
		return nil, g.paymentRequiredError(requirements)
	}

	id := proofID(proof)
	if g.replay.seenRecently(id, time.Now()) {
		return nil, gatewayerr.New(gatewayerr.PaymentReplay, "payment already used")
	}

	resp, err := g.cfg.Facilitator.Verify(ctx, proof, requirements)
	if err != nil {
		return nil, gatewayerr.New(gatewayerr.VerificationUnavailable, "verification service unavailable")
	}
	if !resp.IsValid {
		return nil, gatewayerr.New(gatewayerr.InvalidPayment, "payment invalid").
			WithDetails(resp.InvalidReason)
	}

	g.replay.markSeen(id, time.Now())
	return &Proof{Raw: proof, ID: id, Requirements: requirements}, nil
}

// Settle enqueues a fire-and-forget settlement notification for a
// successfully completed, previously-verified call. A bypassed request
// (empty Proof.Raw) is never settled — there was nothing for the
// facilitator to verify.
func (g *Gate) Settle(proof *Proof) {
	if proof == nil || proof.Raw == "" {
		return
	}
	g.queue.Notify(proof.Raw, proof.Requirements)
}

// bypassed implements spec.md §4.2 step 1: a matching test-bypass key from
// a non-allow-listed peer is treated as if absent, never revealed.
func (g *Gate) bypassed(r *http.Request) bool {
	if g.cfg.BypassKey == "" {
		return false
	}
	if r.Header.Get(testKeyHeader) != g.cfg.BypassKey {
		return false
	}
	return g.cfg.AllowList.AllowsRequest(r)
}

func (g *Gate) paymentRequiredError(requirements facilitator.PaymentRequirements) *gatewayerr.Error {
	display := requirements.Amount
	if micros, err := strconv.ParseInt(requirements.Amount, 10, 64); err == nil {
		display = money.Format(money.Micros(micros))
	}
	return gatewayerr.New(gatewayerr.PaymentRequired,
		fmt.Sprintf("payment required: %s via %s to %s", display, requirements.Network, requirements.PayTo)).
		WithDetails(g.PaymentRequired(requirements))
}
