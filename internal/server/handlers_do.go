package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/morezero/capability-gateway/pkg/backend"
	"github.com/morezero/capability-gateway/pkg/db"
	"github.com/morezero/capability-gateway/pkg/dispatcher"
	"github.com/morezero/capability-gateway/pkg/gatewayerr"
	"github.com/morezero/capability-gateway/pkg/money"
	"github.com/morezero/capability-gateway/pkg/paymentgate"
	"github.com/morezero/capability-gateway/pkg/registry"
)

type doRequest struct {
	Task       string                 `json:"task"`
	Capability string                 `json:"capability"`
	Params     map[string]interface{} `json:"params"`
	Budget     string                 `json:"budget"`
}

type doCapability struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Cost   string `json:"cost"`
	Source string `json:"source"`
}

type qualityMeta struct {
	BackendStatus     int   `json:"backendStatus"`
	BackendResponseMs int64 `json:"backendResponseMs"`
	GatewayOverheadMs int64 `json:"gatewayOverheadMs"`
}

type doMeta struct {
	ContentType string      `json:"contentType"`
	DurationMs  int64       `json:"durationMs"`
	Gateway     string      `json:"gateway"`
	Version     string      `json:"version"`
	Retries     int         `json:"retries"`
	Quality     qualityMeta `json:"quality"`
}

type pricing struct {
	ProviderCost string `json:"providerCost"`
	GatewayCost  string `json:"gatewayCost"`
	Markup       string `json:"markup"`
}

type doResponse struct {
	Success       bool                    `json:"success"`
	Capability    doCapability            `json:"capability"`
	Params        map[string]interface{}  `json:"params"`
	Result        interface{}             `json:"result"`
	Meta          doMeta                  `json:"meta"`
	Pricing       *pricing                `json:"pricing,omitempty"`
	MultiStepHint bool                    `json:"multiStepHint,omitempty"`
}

// handleDo implements the single-capability dispatch path: resolve the
// capability and its parameters, verify payment for the quoted cost, call
// the backend through the reliability wrapper, record usage, and settle.
// Ordering follows the gateway's testable scenarios: resolution (and its
// budget check) happens before payment is ever requested, so an
// over-budget task never triggers a 402.
func (g *Gateway) handleDo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()

	var req doRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.New(gatewayerr.MissingTask, "invalid request body"))
		return
	}

	resolution, err := g.dispatcher.Resolve(r.Context(), dispatcher.Request{
		Task:         req.Task,
		CapabilityID: req.Capability,
		Params:       req.Params,
		Budget:       req.Budget,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	cap := resolution.Capability

	requirements := g.gate.Requirements(cap.CostMicros, cap.ID, cap.Name)
	proof, err := g.gate.Verify(r.Context(), r, requirements)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := callerIdentity(r, proof)

	backendStart := time.Now()
	resp, retries, callErr := g.reliability.Wrap(r.Context(), cap.ID, func(ctx context.Context) (*backend.Response, error) {
		return g.backend.Call(ctx, cap, resolution.Params)
	})
	backendElapsed := time.Since(backendStart)

	success := callErr == nil
	circuitOpen := isCircuitOpen(callErr)

	g.recordUsage(r.Context(), db.UsageRecord{
		Caller:       caller,
		CapabilityID: cap.ID,
		CostMicros:   int64(billedCost(cap.CostMicros, circuitOpen)),
		Success:      success,
		LatencyMs:    int(backendElapsed.Milliseconds()),
	})

	if !circuitOpen {
		g.gate.Settle(proof)
	}

	if callErr != nil {
		writeError(w, callErr)
		return
	}

	body := doResponse{
		Success: true,
		Capability: doCapability{
			ID:     cap.ID,
			Name:   cap.Name,
			Cost:   cap.Cost(),
			Source: string(cap.SourceTier),
		},
		Params: resolution.Params,
		Result: resp.Body,
		Meta: doMeta{
			ContentType: resp.ContentType,
			DurationMs:  time.Since(start).Milliseconds(),
			Gateway:     "capability-gateway",
			Version:     gatewayVersion,
			Retries:     retries,
			Quality: qualityMeta{
				BackendStatus:     resp.StatusCode,
				BackendResponseMs: backendElapsed.Milliseconds(),
				GatewayOverheadMs: time.Since(start).Milliseconds() - backendElapsed.Milliseconds(),
			},
		},
		MultiStepHint: resolution.MultiStepHint,
	}
	if cap.SourceTier == registry.Discovered {
		body.Pricing = &pricing{
			ProviderCost: money.Format(cap.ProviderCostMicros),
			GatewayCost:  money.Format(cap.CostMicros),
			Markup:       money.Format(cap.GatewayFee()),
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// recordUsage appends a usage record, logging (rather than failing the
// request) if the ledger write itself fails — the caller already received
// their result, and a half-written ledger should not retroactively undo it.
func (g *Gateway) recordUsage(ctx context.Context, rec db.UsageRecord) {
	if err := g.ledger.Append(ctx, rec); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to append usage record for caller=%s capability=%s: %v", logPrefix, rec.Caller, rec.CapabilityID, err))
	}
}

// billedCost returns the amount to record against the ledger: the full
// capability cost on success, the full cost on a post-payment backend
// failure (the payment still settles), or zero when the call never
// reached the backend because its circuit was open.
func billedCost(cost money.Micros, circuitOpen bool) money.Micros {
	if circuitOpen {
		return 0
	}
	return cost
}

func isCircuitOpen(err error) bool {
	gwErr, ok := err.(*gatewayerr.Error)
	return ok && gwErr.ErrCode == gatewayerr.CircuitOpen
}

func callerIdentity(r *http.Request, proof *paymentgate.Proof) string {
	if wallet := r.Header.Get("x-wallet-address"); wallet != "" {
		return wallet
	}
	if proof != nil && proof.Raw != "" {
		return proof.Raw
	}
	return "anonymous"
}
