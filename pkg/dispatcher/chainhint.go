package dispatcher

import (
	"regexp"
	"strings"
)

var sequencingPhrases = []string{"then", "and then", "after that", "next", "pipe", "chain"}

var convertPattern = regexp.MustCompile(`(?i)\bconvert\s+\S+\s+to\s+\S+`)

// actionVerbs is the fixed set of verbs used to detect a likely multi-step
// task by counting distinct verbs present, per spec.md §4.5.
var actionVerbs = []string{
	"scrape", "screenshot", "extract", "convert", "generate", "search",
	"resize", "parse", "shorten", "validate", "lookup", "upload", "format",
}

// looksLikeChain is a non-fatal heuristic: the dispatcher still executes
// single-step, but attaches a hint pointing to the chain endpoint.
func looksLikeChain(task string) bool {
	if task == "" {
		return false
	}
	lower := strings.ToLower(task)

	for _, phrase := range sequencingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	if convertPattern.MatchString(task) {
		return true
	}

	distinctVerbs := 0
	for _, verb := range actionVerbs {
		if strings.Contains(lower, verb) {
			distinctVerbs++
		}
	}
	return distinctVerbs >= 2
}
