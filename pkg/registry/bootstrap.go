package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/morezero/capability-gateway/pkg/money"
)

const bootstrapLogPrefix = "registry:bootstrap"

// bootstrapFile is the on-disk shape of the native/partner capability
// catalog (REGISTRY_BOOTSTRAP_FILE). Costs and revenue splits are carried as
// human strings/fractions here and resolved to micro-units once at load, as
// spec.md §4.1 requires.
type bootstrapFile struct {
	Capabilities []bootstrapCapability `json:"capabilities"`
}

type bootstrapCapability struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Cost        string                 `json:"cost"`
	Keywords    []string               `json:"keywords"`
	Endpoint    string                 `json:"endpoint"`
	Method      string                 `json:"method"`
	InputSchema map[string]bootstrapField `json:"inputSchema"`
	OutputType  string                 `json:"outputType"`
	SourceTier  string                 `json:"sourceTier"`
	Provider    *Provider              `json:"provider,omitempty"`
	RevenueSplit *RevenueSplit         `json:"revenueSplit,omitempty"`
}

type bootstrapField struct {
	Type        string      `json:"type"`
	Required    bool        `json:"required,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}

// LoadBootstrapFile reads and validates the capability catalog at path.
// Any malformed entry is a fatal error at startup, per spec.md §4.1.
func LoadBootstrapFile(path string) ([]Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - read %s: %w", bootstrapLogPrefix, path, err)
	}

	var raw bootstrapFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s - parse %s: %w", bootstrapLogPrefix, path, err)
	}

	seen := make(map[string]bool, len(raw.Capabilities))
	caps := make([]Capability, 0, len(raw.Capabilities))
	for _, rc := range raw.Capabilities {
		c, err := resolveBootstrapCapability(rc)
		if err != nil {
			return nil, fmt.Errorf("%s - capability %q: %w", bootstrapLogPrefix, rc.ID, err)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%s - duplicate capability id %q", bootstrapLogPrefix, c.ID)
		}
		seen[c.ID] = true
		caps = append(caps, c)
	}
	return caps, nil
}

func resolveBootstrapCapability(rc bootstrapCapability) (Capability, error) {
	if rc.ID == "" {
		return Capability{}, fmt.Errorf("missing id")
	}
	if rc.Endpoint == "" {
		return Capability{}, fmt.Errorf("missing endpoint")
	}

	method := Method(rc.Method)
	if method != MethodGET && method != MethodPOST {
		return Capability{}, fmt.Errorf("unknown method %q", rc.Method)
	}

	costMicros, err := money.Parse(rc.Cost, money.RoundAwayFromZero)
	if err != nil {
		return Capability{}, fmt.Errorf("invalid cost %q: %w", rc.Cost, err)
	}
	if costMicros < 0 {
		return Capability{}, fmt.Errorf("cost must be >= 0, got %s", rc.Cost)
	}

	outputType := OutputType(rc.OutputType)
	switch outputType {
	case OutputJSON, OutputImage, OutputPDF, OutputText:
	default:
		return Capability{}, fmt.Errorf("unknown outputType %q", rc.OutputType)
	}

	tier := SourceTier(rc.SourceTier)
	switch tier {
	case Native:
	case Partner:
		if rc.Provider == nil {
			return Capability{}, fmt.Errorf("partner capability requires a provider")
		}
		if rc.RevenueSplit == nil {
			return Capability{}, fmt.Errorf("partner capability requires a revenueSplit")
		}
	default:
		return Capability{}, fmt.Errorf("bootstrap capabilities must be native or partner, got %q", rc.SourceTier)
	}

	if rc.RevenueSplit != nil {
		sum := rc.RevenueSplit.ProviderShare + rc.RevenueSplit.GatewayShare
		if sum < 0.999 || sum > 1.001 {
			return Capability{}, fmt.Errorf("revenueSplit must sum to 1.0, got %f", sum)
		}
	}

	schema := make(InputSchema, len(rc.InputSchema))
	for name, f := range rc.InputSchema {
		ft := FieldType(f.Type)
		switch ft {
		case FieldString, FieldNumber, FieldBoolean:
		default:
			return Capability{}, fmt.Errorf("input %q: unknown type %q", name, f.Type)
		}
		schema[name] = InputField{
			Type:        ft,
			Required:    f.Required,
			Default:     f.Default,
			Description: f.Description,
		}
	}

	return Capability{
		ID:           rc.ID,
		Name:         rc.Name,
		Description:  rc.Description,
		CostMicros:   costMicros,
		Keywords:     rc.Keywords,
		Endpoint:     rc.Endpoint,
		Method:       method,
		InputSchema:  schema,
		OutputType:   outputType,
		SourceTier:   tier,
		Provider:     rc.Provider,
		RevenueSplit: rc.RevenueSplit,
	}, nil
}
