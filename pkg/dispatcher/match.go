package dispatcher

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/morezero/capability-gateway/pkg/registry"
)

// bestMatch scores every candidate by summing keyword-length bonuses for
// every keyword substring-present in the lowercased task, +10 if the
// capability name appears, +15 if the capability ID appears, and returns
// the highest scorer with score > 0, per spec.md §4.5.
func bestMatch(task string, candidates []registry.Capability) (registry.Capability, bool) {
	if task == "" {
		return registry.Capability{}, false
	}
	lower := strings.ToLower(task)

	var best registry.Capability
	bestScore := 0
	for _, c := range candidates {
		score := scoreCandidate(lower, c)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best, bestScore > 0
}

// MatchCandidates ranks the registry's native/partner/discovered
// capabilities against task the same way Resolve does, but returns every
// positively-scored match instead of just the winner — used by GET
// /discover to surface native matches alongside the marketplace
// passthrough, per spec.md §6.
func (d *Dispatcher) MatchCandidates(task string) []registry.Capability {
	if task == "" {
		return nil
	}
	lower := strings.ToLower(task)

	type scored struct {
		cap   registry.Capability
		score int
	}
	var ranked []scored
	for _, c := range d.registry.List() {
		if score := scoreCandidate(lower, c); score > 0 {
			ranked = append(ranked, scored{cap: c, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]registry.Capability, len(ranked))
	for i, r := range ranked {
		out[i] = r.cap
	}
	return out
}

// suggestCapability returns the registered ID closest to id by
// Jaro-Winkler similarity, for an unknown_capability error's Details —
// a typo like "webscrape" should point the caller at "web-scrape" instead
// of a bare miss. Returns "" if nothing clears the similarity floor.
func suggestCapability(id string, candidates []registry.Capability) string {
	const minSimilarity = 0.75
	lower := strings.ToLower(id)

	best := ""
	bestScore := minSimilarity
	for _, c := range candidates {
		score := smetrics.JaroWinkler(lower, strings.ToLower(c.ID), 0.7, 4)
		if score > bestScore {
			bestScore = score
			best = c.ID
		}
	}
	return best
}

func scoreCandidate(lowerTask string, c registry.Capability) int {
	score := 0
	for _, kw := range c.Keywords {
		kw = strings.ToLower(kw)
		if kw != "" && strings.Contains(lowerTask, kw) {
			score += len(kw)
		}
	}
	if c.Name != "" && strings.Contains(lowerTask, strings.ToLower(c.Name)) {
		score += 10
	}
	if strings.Contains(lowerTask, strings.ToLower(c.ID)) {
		score += 15
	}
	return score
}
