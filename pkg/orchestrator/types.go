// Package orchestrator plans and executes multi-step capability chains
// with output piping, per spec.md §4.8.
package orchestrator

import (
	"github.com/morezero/capability-gateway/pkg/gatewayerr"
	"github.com/morezero/capability-gateway/pkg/money"
)

// hardCeiling is the gateway-wide chain cost ceiling, per spec.md §3.
const hardCeiling money.Micros = 500_000 // $0.50

// maxSteps is the chain length limit, per spec.md §3.
const maxSteps = 5

// Step is one planned chain step: a capability to call, literal parameters,
// and a mapping from earlier step outputs into this step's parameters.
type Step struct {
	CapabilityID string                 `json:"capabilityId"`
	Params       map[string]interface{} `json:"params,omitempty"`
	InputMapping map[string]string      `json:"inputMapping,omitempty"`
}

// Plan is an ordered, validated sequence of steps with its total estimated
// cost.
type Plan struct {
	Steps         []Step       `json:"steps"`
	EstimatedCost money.Micros `json:"estimatedCost"`
}

// StepResult is the outcome of executing one step.
type StepResult struct {
	StepIndex    int                    `json:"stepIndex"`
	CapabilityID string                 `json:"capabilityId"`
	Params       map[string]interface{} `json:"params"`
	Result       interface{}            `json:"result"`
	CostMicros   money.Micros           `json:"costMicros"`
	Retries      int                    `json:"retries"`
	DurationMs   int64                  `json:"durationMs"`
}

// ChainResult is the outcome of executing an entire plan. A failed run
// never surfaces as a Go error — the caller (internal/server) maps
// FailedCode to an HTTP status the same way it maps any other
// gatewayerr.Code.
type ChainResult struct {
	Success      bool            `json:"success"`
	FinalResult  interface{}     `json:"finalResult,omitempty"`
	AllSteps     []StepResult    `json:"allSteps"`
	TotalCost    money.Micros    `json:"totalCost"`
	DurationMs   int64           `json:"durationMs"`
	FailedStep   int             `json:"failedStep,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
	FailedCode   gatewayerr.Code `json:"failedCode,omitempty"`
}
