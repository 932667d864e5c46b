// Package dispatcher resolves a caller's task or explicit capability ID to
// a capability and its call parameters, per spec.md §4.5. It does not call
// the backend itself — that happens after the payment gate, through the
// reliability layer — so Dispatcher only ever produces a Resolution.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/morezero/capability-gateway/pkg/gatewayerr"
	"github.com/morezero/capability-gateway/pkg/money"
	"github.com/morezero/capability-gateway/pkg/registry"
)

const logPrefix = "dispatcher"

// Discoverer is the Discovery Engine seam: when no registered capability
// matches a free-form task, the dispatcher asks a Discoverer for a
// marketplace candidate instead of failing immediately.
type Discoverer interface {
	Discover(ctx context.Context, task string) (*registry.Capability, bool, error)
}

// Request is the caller's intent: either an explicit capability ID or a
// free-form task, optional literal params, and an optional budget string.
type Request struct {
	Task         string
	CapabilityID string
	Params       map[string]interface{}
	Budget       string
}

// Resolution is what the dispatcher resolved a Request to: the chosen
// capability, its fully-resolved call parameters, and whether the task
// looked like it wanted a multi-step chain.
type Resolution struct {
	Capability    registry.Capability
	Params        map[string]interface{}
	MultiStepHint bool
}

// Dispatcher ties the registry and an optional discovery fallback together.
type Dispatcher struct {
	registry   *registry.Registry
	discoverer Discoverer
}

// New creates a Dispatcher. discoverer may be nil, in which case a task
// that matches nothing registered fails with no_matching_capability instead
// of falling through to discovery.
func New(reg *registry.Registry, discoverer Discoverer) *Dispatcher {
	return &Dispatcher{registry: reg, discoverer: discoverer}
}

// Resolve implements spec.md §4.5 end to end: matching, discovery fallback,
// budget enforcement, parameter extraction and validation, and the
// multi-step hint.
func (d *Dispatcher) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if req.Task == "" && req.CapabilityID == "" {
		return nil, gatewayerr.New(gatewayerr.MissingTask, "either task or capability must be provided")
	}

	cap, err := d.match(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Budget != "" {
		budgetMicros, err := money.Parse(req.Budget, money.RoundTowardZero)
		if err != nil {
			return nil, gatewayerr.New(gatewayerr.OverBudget, fmt.Sprintf("invalid budget %q", req.Budget))
		}
		if cap.CostMicros > budgetMicros {
			return nil, gatewayerr.New(gatewayerr.OverBudget,
				fmt.Sprintf("capability %s costs %s, exceeds budget %s", cap.ID, cap.Cost(), money.Format(budgetMicros)))
		}
	}

	params, err := resolveParams(cap, req)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Capability:    cap,
		Params:        params,
		MultiStepHint: looksLikeChain(req.Task),
	}, nil
}

func (d *Dispatcher) match(ctx context.Context, req Request) (registry.Capability, error) {
	if req.CapabilityID != "" {
		cap, ok := d.registry.ByID(req.CapabilityID)
		if !ok {
			err := gatewayerr.New(gatewayerr.UnknownCapability,
				fmt.Sprintf("unknown capability %q", req.CapabilityID))
			if suggestion := suggestCapability(req.CapabilityID, d.registry.List()); suggestion != "" {
				err = err.WithDetails(map[string]string{"didYouMean": suggestion})
			}
			return registry.Capability{}, err
		}
		return cap, nil
	}

	if cap, ok := bestMatch(req.Task, d.registry.List()); ok {
		return cap, nil
	}

	if d.discoverer != nil {
		cap, found, err := d.discoverer.Discover(ctx, req.Task)
		if err != nil {
			return registry.Capability{}, fmt.Errorf("%s - discovery: %w", logPrefix, err)
		}
		if found {
			return *cap, nil
		}
	}

	return registry.Capability{}, gatewayerr.New(gatewayerr.NoMatchingCapability,
		fmt.Sprintf("no capability matches %q", req.Task))
}
