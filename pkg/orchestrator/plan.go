package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/morezero/capability-gateway/pkg/gatewayerr"
	"github.com/morezero/capability-gateway/pkg/money"
	"github.com/morezero/capability-gateway/pkg/planner"
	"github.com/morezero/capability-gateway/pkg/registry"
)

const logPrefix = "orchestrator"

const systemPrompt = `You plan chains of capability calls for a pay-per-request gateway.
Given a task and a catalog of available capabilities, respond with strict JSON of the form
{"steps":[{"capabilityId":"...","params":{...},"inputMapping":{...}}],"estimatedCost":<micro-units integer>}
Use between 1 and 5 steps. Every capabilityId must exist in the catalog. inputMapping values are
dotted paths of the form "steps[N].field.subfield" referencing earlier step outputs. Respond with
JSON only, no prose.`

type catalogEntry struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Cost        string              `json:"cost"`
	OutputType  registry.OutputType `json:"outputType"`
	InputSchema registry.InputSchema `json:"inputSchema"`
}

type rawPlan struct {
	Steps         []Step `json:"steps"`
	EstimatedCost int64  `json:"estimatedCost"`
}

// Planner wraps an LLM chat client with the catalog-formatting and
// JSON-plan-parsing logic specific to the gateway's chain planning prompt.
type Planner struct {
	client *planner.Client
}

// NewPlanner creates a Planner around an LLM chat client.
func NewPlanner(client *planner.Client) *Planner {
	return &Planner{client: client}
}

// Configured reports whether the underlying LLM client has credentials.
func (p *Planner) Configured() bool {
	return p.client != nil && p.client.Configured()
}

// Plan submits task and the capability catalog to the external planner,
// parses its response, and validates it per spec.md §4.8. A validation
// failure never bills the caller.
func (p *Planner) Plan(ctx context.Context, task string, catalog []registry.Capability, budget money.Micros) (*Plan, error) {
	if !p.Configured() {
		return nil, gatewayerr.New(gatewayerr.OrchestrationFailed, "chain planner is not configured")
	}

	entries := make([]catalogEntry, 0, len(catalog))
	for _, c := range catalog {
		entries = append(entries, catalogEntry{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Cost:        c.Cost(),
			OutputType:  c.OutputType,
			InputSchema: c.InputSchema,
		})
	}
	catalogJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("%s - encode catalog: %w", logPrefix, err)
	}

	userPrompt := fmt.Sprintf("Task: %s\n\nCapability catalog:\n%s", task, string(catalogJSON))

	raw, err := p.client.PlanRaw(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, gatewayerr.New(gatewayerr.OrchestrationFailed, fmt.Sprintf("planner unavailable: %v", err))
	}

	var parsed rawPlan
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, gatewayerr.New(gatewayerr.OrchestrationFailed, fmt.Sprintf("planner returned invalid JSON: %v", err))
	}

	plan := &Plan{Steps: parsed.Steps, EstimatedCost: money.Micros(parsed.EstimatedCost)}
	if err := validate(plan, catalog, budget); err != nil {
		return nil, err
	}
	return plan, nil
}

// validate implements spec.md §4.8's three planner-level checks.
func validate(plan *Plan, catalog []registry.Capability, budget money.Micros) error {
	if len(plan.Steps) < 1 || len(plan.Steps) > maxSteps {
		return gatewayerr.New(gatewayerr.OrchestrationFailed,
			fmt.Sprintf("plan has %d steps, must be between 1 and %d", len(plan.Steps), maxSteps))
	}

	byID := make(map[string]registry.Capability, len(catalog))
	for _, c := range catalog {
		byID[c.ID] = c
	}

	var total money.Micros
	for i, step := range plan.Steps {
		cap, ok := byID[step.CapabilityID]
		if !ok {
			return gatewayerr.New(gatewayerr.OrchestrationFailed,
				fmt.Sprintf("step %d: unknown capability %q", i, step.CapabilityID))
		}
		total += cap.CostMicros
	}

	ceiling := hardCeiling
	if budget > 0 && budget < ceiling {
		ceiling = budget
	}
	if total > ceiling {
		return gatewayerr.New(gatewayerr.OrchestrationFailed,
			fmt.Sprintf("plan costs %s, exceeds ceiling %s", money.Format(total), money.Format(ceiling)))
	}
	plan.EstimatedCost = total
	return nil
}

// extractJSON trims any prose wrapper around a JSON object, tolerating
// planners that ignore the "JSON only" instruction and fence the reply in
// markdown.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}
