// Package facilitator is an HTTP client for the external x402 payment
// facilitator: it verifies payment proofs and, after a successful backend
// call, settles them. Shaped after the x402 facilitator contract
// (Verify/Settle/Supported) rather than any one vendor's SDK.
package facilitator

// PaymentRequirements is the x402-shaped description of what a resource
// costs, quoted both in the 402 response body and to the facilitator's
// Verify/Settle calls.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Amount            string                 `json:"amount"`
	Asset             string                 `json:"asset"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// VerifyResponse is the facilitator's answer to a verification request.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's answer to a settlement request.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	NetworkID   string `json:"networkId,omitempty"`
}

// SupportedKind describes one payment scheme/network pair the facilitator
// accepts.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse lists the facilitator's supported payment kinds.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
