// Package registry implements the capability catalog: the static store of
// native and partner capabilities loaded at startup, plus the in-memory
// table of capabilities activated at runtime by the discovery engine.
package registry

import "github.com/morezero/capability-gateway/pkg/money"

// SourceTier classifies where a capability came from and dictates whether
// the backend-bypass credential is sent and how its cost was computed.
type SourceTier string

const (
	Native     SourceTier = "native"
	Partner    SourceTier = "partner"
	Discovered SourceTier = "discovered"
)

// DiscoveredPrefix is the reserved ID prefix for capabilities the discovery
// engine activates at runtime.
const DiscoveredPrefix = "discovered:"

// Method is the HTTP method used to call a capability's backend.
type Method string

const (
	MethodGET  Method = "GET"
	MethodPOST Method = "POST"
)

// OutputType classes the backend's response so the Backend Caller knows how
// to normalize it.
type OutputType string

const (
	OutputJSON  OutputType = "json"
	OutputImage OutputType = "image"
	OutputPDF   OutputType = "pdf"
	OutputText  OutputType = "text"
)

// FieldType is the semantic JSON type of an input schema field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// InputField describes one parameter a capability accepts.
type InputField struct {
	Type        FieldType   `json:"type"`
	Required    bool        `json:"required,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}

// InputSchema maps parameter name to its field description.
type InputSchema map[string]InputField

// Provider describes the external party behind a partner or discovered capability.
type Provider struct {
	Name          string `json:"name"`
	PayoutAddress string `json:"payoutAddress"`
	ContactURL    string `json:"contactUrl,omitempty"`
}

// RevenueSplit divides a capability's cost between its provider and the
// gateway. ProviderShare + GatewayShare must equal 1.0.
type RevenueSplit struct {
	ProviderShare float64 `json:"providerShare"`
	GatewayShare  float64 `json:"gatewayShare"`
}

// Capability is the single polymorphic type for native, partner and
// discovered capabilities alike; SourceTier is the only thing reliability,
// dispatch and backend-calling code branch on.
type Capability struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	CostMicros  money.Micros `json:"costMicros"`
	Keywords    []string     `json:"keywords"`
	Endpoint    string       `json:"endpoint"`
	Method      Method       `json:"method"`
	InputSchema InputSchema  `json:"inputSchema"`
	OutputType  OutputType   `json:"outputType"`
	SourceTier  SourceTier   `json:"sourceTier"`

	// Provider and RevenueSplit are nil/zero for native capabilities.
	Provider     *Provider     `json:"provider,omitempty"`
	RevenueSplit *RevenueSplit `json:"revenueSplit,omitempty"`

	// PaymentNetwork and PaymentAsset are only meaningful for discovered
	// capabilities, carried as-is from the marketplace record.
	PaymentNetwork string `json:"paymentNetwork,omitempty"`
	PaymentAsset   string `json:"paymentAsset,omitempty"`

	// ProviderCostMicros is the marketplace-quoted cost before gateway
	// markup; zero for native/partner capabilities, where CostMicros
	// already is the provider-facing price.
	ProviderCostMicros money.Micros `json:"providerCostMicros,omitempty"`
}

// GatewayFee returns CostMicros - ProviderCostMicros: zero unless this is a
// discovered capability carrying a markup.
func (c Capability) GatewayFee() money.Micros {
	return c.CostMicros - c.ProviderCostMicros
}

// Cost returns the human-readable price string, e.g. "$0.01".
func (c Capability) Cost() string {
	return money.Format(c.CostMicros)
}
