package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/morezero/capability-gateway/pkg/db"
	"github.com/morezero/capability-gateway/pkg/gatewayerr"
	"github.com/morezero/capability-gateway/pkg/money"
	"github.com/morezero/capability-gateway/pkg/orchestrator"
)

type chainRequest struct {
	Task   string `json:"task"`
	Budget string `json:"budget"`
	DryRun bool   `json:"dryRun"`
}

type chainPlanBody struct {
	Steps         []orchestrator.Step `json:"steps"`
	EstimatedCost string              `json:"estimatedCost"`
}

// handleDoChain implements the multi-step orchestration path: plan, then
// (unless dryRun) verify payment for the plan's whole estimated cost before
// executing any step, then run the chain, and finally settle — unless the
// chain's first failure was a step whose circuit breaker was open, mirroring
// handleDo's single-call rule that a circuit-open result is never billed. A
// step failure for any other reason still settles the full plan cost: the
// chain already committed to calling backends on the caller's behalf.
func (g *Gateway) handleDoChain(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()

	var req chainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.New(gatewayerr.MissingTask, "invalid request body"))
		return
	}
	if req.Task == "" {
		writeError(w, gatewayerr.New(gatewayerr.MissingTask, "task is required"))
		return
	}
	if !g.planner.Configured() {
		writeError(w, gatewayerr.New(gatewayerr.OrchestrationFailed, "chain planner is not configured"))
		return
	}

	var budget money.Micros
	if req.Budget != "" {
		parsed, err := money.Parse(req.Budget, money.RoundTowardZero)
		if err != nil {
			writeError(w, gatewayerr.New(gatewayerr.MissingParams, "invalid budget"))
			return
		}
		budget = parsed
	}

	plan, err := g.planner.Plan(r.Context(), req.Task, g.registry.List(), budget)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.DryRun {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"dryRun": true,
			"plan": chainPlanBody{
				Steps:         plan.Steps,
				EstimatedCost: money.Format(plan.EstimatedCost),
			},
		})
		return
	}

	requirements := g.gate.Requirements(plan.EstimatedCost, "chain:"+req.Task, req.Task)
	proof, err := g.gate.Verify(r.Context(), r, requirements)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := callerIdentity(r, proof)

	result, err := orchestrator.Execute(r.Context(), plan, g.registry, g.reliability, g.backend)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.FailedCode != gatewayerr.CircuitOpen {
		g.gate.Settle(proof)
	}

	for _, step := range result.AllSteps {
		g.recordUsage(r.Context(), db.UsageRecord{
			Caller:       caller,
			CapabilityID: step.CapabilityID,
			CostMicros:   int64(step.CostMicros),
			Success:      true,
			LatencyMs:    int(step.DurationMs),
		})
	}
	if !result.Success && result.FailedStep < len(plan.Steps) {
		g.recordUsage(r.Context(), db.UsageRecord{
			Caller:       caller,
			CapabilityID: plan.Steps[result.FailedStep].CapabilityID,
			CostMicros:   0,
			Success:      false,
			LatencyMs:    int(time.Since(start).Milliseconds()),
		})
	}

	if !result.Success {
		writeError(w, gatewayerr.New(result.FailedCode, result.FailedReason).WithDetails(result))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
