package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/morezero/capability-gateway/pkg/backend"
	"github.com/morezero/capability-gateway/pkg/gatewayerr"
	"github.com/morezero/capability-gateway/pkg/money"
	"github.com/morezero/capability-gateway/pkg/reliability"
	"github.com/morezero/capability-gateway/pkg/registry"
)

// TotalTimeout bounds an entire chain's execution, per spec.md §3/§5.
const TotalTimeout = 120 * time.Second

// StepTimeout bounds one step's execution, per spec.md §3/§5.
const StepTimeout = 30 * time.Second

// Execute runs plan's steps strictly sequentially against reg/rel/backendClient,
// per spec.md §4.8. On any step failure it returns a ChainResult naming the
// failed step index, capability, and gatewayerr.Code — including
// gatewayerr.CircuitOpen when the failing step's breaker was open — so the
// caller (internal/server) can decide whether to settle the chain's payment
// the same way handleDo skips billing for a circuit-open single call.
func Execute(ctx context.Context, plan *Plan, reg *registry.Registry, rel *reliability.Registry, backendClient *backend.Client) (*ChainResult, error) {
	chainCtx, cancel := context.WithTimeout(ctx, TotalTimeout)
	defer cancel()

	start := time.Now()
	results := make([]StepResult, 0, len(plan.Steps))
	var total int64

	for i, step := range plan.Steps {
		capa, ok := reg.ByID(step.CapabilityID)
		if !ok {
			return failAt(results, start, i, step.CapabilityID, "capability no longer registered", gatewayerr.StepFailed), nil
		}

		params := buildStepParams(capa, step, results)

		stepCtx, stepCancel := context.WithTimeout(chainCtx, StepTimeout)
		stepStart := time.Now()
		resp, retries, err := rel.Wrap(stepCtx, capa.ID, func(ctx context.Context) (*backend.Response, error) {
			return backendClient.Call(ctx, capa, params)
		})
		stepDuration := time.Since(stepStart)
		stepCancel()

		if err != nil {
			reason := err.Error()
			code := gatewayerr.StepFailed
			switch {
			case isCircuitOpen(err):
				reason = fmt.Sprintf("circuit open for %s", capa.ID)
				code = gatewayerr.CircuitOpen
			case chainCtx.Err() == context.DeadlineExceeded:
				reason = "total chain timeout exceeded"
				code = gatewayerr.TotalTimeout
			case stepCtx.Err() == context.DeadlineExceeded:
				reason = "step timeout exceeded"
				code = gatewayerr.StepTimeout
			}
			return failAt(results, start, i, capa.ID, reason, code), nil
		}

		total += int64(capa.CostMicros)
		results = append(results, StepResult{
			StepIndex:    i,
			CapabilityID: capa.ID,
			Params:       params,
			Result:       resp.Body,
			CostMicros:   capa.CostMicros,
			Retries:      retries,
			DurationMs:   stepDuration.Milliseconds(),
		})
	}

	var finalResult interface{}
	if len(results) > 0 {
		finalResult = results[len(results)-1].Result
	}

	return &ChainResult{
		Success:     true,
		FinalResult: finalResult,
		AllSteps:    results,
		TotalCost:   money.Micros(total),
		DurationMs:  time.Since(start).Milliseconds(),
	}, nil
}

func isCircuitOpen(err error) bool {
	gwErr, ok := err.(*gatewayerr.Error)
	return ok && gwErr.ErrCode == gatewayerr.CircuitOpen
}

func failAt(results []StepResult, start time.Time, stepIndex int, capabilityID, reason string, code gatewayerr.Code) *ChainResult {
	var total int64
	for _, r := range results {
		total += int64(r.CostMicros)
	}
	return &ChainResult{
		Success:      false,
		AllSteps:     results,
		TotalCost:    money.Micros(total),
		DurationMs:   time.Since(start).Milliseconds(),
		FailedStep:   stepIndex,
		FailedReason: fmt.Sprintf("step %d (%s): %s", stepIndex, capabilityID, reason),
		FailedCode:   code,
	}
}

// buildStepParams layers (schema defaults) <- (literal params) <-
// (resolved input mapping); an unresolvable mapping path leaves the
// literal value (or default) in place, per spec.md §4.8.
func buildStepParams(capa registry.Capability, step Step, priorResults []StepResult) map[string]interface{} {
	params := map[string]interface{}{}
	for name, field := range capa.InputSchema {
		if field.Default != nil {
			params[name] = field.Default
		}
	}
	for k, v := range step.Params {
		params[k] = v
	}
	for field, path := range step.InputMapping {
		if value, ok := ResolvePath(priorResults, path); ok {
			params[field] = value
		}
	}
	return params
}
