package orchestrator

import (
	"strconv"
	"strings"
)

// ResolvePath is a pure lookup against prior step results — no string
// interpolation, no expressions, per spec.md §4.8. path has the form
// "steps[N].field.subfield"; an unresolvable path returns (nil, false) and
// callers should fall back to the literal params value.
func ResolvePath(results []StepResult, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	if len(segments) == 0 {
		return nil, false
	}

	idx, ok := stepIndex(segments[0])
	if !ok || idx < 0 || idx >= len(results) {
		return nil, false
	}

	var current interface{} = results[idx].Result
	for _, seg := range segments[1:] {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// stepIndex parses the "steps[N]" head segment and returns N.
func stepIndex(segment string) (int, bool) {
	if !strings.HasPrefix(segment, "steps[") || !strings.HasSuffix(segment, "]") {
		return 0, false
	}
	inner := segment[len("steps[") : len(segment)-1]
	n, err := strconv.Atoi(inner)
	if err != nil {
		return 0, false
	}
	return n, true
}
