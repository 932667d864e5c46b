// Package bazaar is an HTTP client for the external x402 marketplace the
// Discovery Engine queries when no registered capability matches a task.
package bazaar

import "github.com/morezero/capability-gateway/pkg/facilitator"

// DiscoveryMetadata is optional descriptive information about a listed
// resource, as returned by the marketplace's discovery catalog.
type DiscoveryMetadata struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Provider    string   `json:"provider,omitempty"`
}

// Resource is one listed service: an x402-payable HTTP endpoint with its
// payment requirements and optional metadata.
type Resource struct {
	Resource    string                            `json:"resource"`
	Type        string                            `json:"type"`
	X402Version int                               `json:"x402Version"`
	Accepts     []facilitator.PaymentRequirements `json:"accepts"`
	LastUpdated string                            `json:"lastUpdated"`
	Metadata    *DiscoveryMetadata                `json:"metadata,omitempty"`
}

// ListResponse is the marketplace's paginated search result.
type ListResponse struct {
	X402Version int        `json:"x402Version"`
	Items       []Resource `json:"items"`
	Pagination  Pagination `json:"pagination"`
}

// Pagination describes a ListResponse's paging window.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// SearchOptions narrows a marketplace search.
type SearchOptions struct {
	Query string `url:"q,omitempty"`
	Type  string `url:"type,omitempty"`
	Limit int    `url:"limit,omitempty"`
}
