package discovery

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/morezero/capability-gateway/pkg/bazaar"
	"github.com/morezero/capability-gateway/pkg/money"
	"github.com/morezero/capability-gateway/pkg/registry"
)

// costCeiling is the marketplace provider-cost filter, per spec.md §4.6.
const costCeiling money.Micros = 250_000 // $0.25

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields("the a an is to of and for in on at by with from this that it I my me we our") {
		stopWords[strings.ToLower(w)] = true
	}
}

// searchTerm strips URLs, emails, and stop-words from task and collapses
// whitespace, per spec.md §4.6. An empty result means "no discovery".
func searchTerm(task string) string {
	cleaned := urlPattern.ReplaceAllString(task, " ")
	cleaned = emailPattern.ReplaceAllString(cleaned, " ")

	var kept []string
	for _, word := range strings.Fields(cleaned) {
		lower := strings.ToLower(strings.Trim(word, ".,!?;:"))
		if lower == "" || stopWords[lower] {
			continue
		}
		kept = append(kept, lower)
	}
	return strings.Join(kept, " ")
}

var (
	urlPattern   = regexp.MustCompile(`https?://[^\s]+`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	nonWordToken = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	slugUnsafe   = regexp.MustCompile(`[^a-z0-9-]+`)
)

// Slugify lowercases name, replaces anything but alphanumerics with hyphens,
// trims repeats, and caps the result at 40 chars.
func Slugify(name string) string {
	lower := strings.ToLower(name)
	slug := slugUnsafe.ReplaceAllString(strings.ReplaceAll(lower, " ", "-"), "-")
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug
}

// deriveKeywords splits description on non-word characters, keeps tokens of
// at least 4 characters, and caps the result at 10.
func deriveKeywords(description string) []string {
	tokens := nonWordToken.Split(description, -1)
	var out []string
	for _, t := range tokens {
		t = strings.ToLower(t)
		if len(t) < 4 {
			continue
		}
		out = append(out, t)
		if len(out) == 10 {
			break
		}
	}
	return out
}

// normalize converts one kept marketplace resource into a discovered
// capability, per spec.md §4.6. ok is false if the resource has no usable
// payment requirement or its amount cannot be parsed.
func normalize(res bazaar.Resource) (registry.Capability, bool) {
	if len(res.Accepts) == 0 {
		return registry.Capability{}, false
	}
	req := res.Accepts[0]

	providerMicros, err := strconv.ParseInt(req.Amount, 10, 64)
	if err != nil {
		return registry.Capability{}, false
	}
	provider := money.Micros(providerMicros)
	if provider > costCeiling {
		return registry.Capability{}, false
	}

	name := req.Description
	if res.Metadata != nil && res.Metadata.Name != "" {
		name = res.Metadata.Name
	}
	description := req.Description
	if res.Metadata != nil && res.Metadata.Description != "" {
		description = res.Metadata.Description
	}

	gatewayCost := money.MarkUp(provider)

	cap := registry.Capability{
		ID:                 registry.DiscoveredPrefix + Slugify(name),
		Name:               name,
		Description:        description,
		CostMicros:         gatewayCost,
		ProviderCostMicros: provider,
		Keywords:           deriveKeywords(description),
		Endpoint:           res.Resource,
		Method:             registry.MethodGET,
		OutputType:         registry.OutputJSON,
		SourceTier:         registry.Discovered,
		Provider: &registry.Provider{
			Name:          providerName(res),
			PayoutAddress: req.PayTo,
		},
		PaymentNetwork: req.Network,
		PaymentAsset:   req.Asset,
	}
	return cap, true
}

func providerName(res bazaar.Resource) string {
	if res.Metadata != nil && res.Metadata.Provider != "" {
		return res.Metadata.Provider
	}
	return "marketplace"
}
