// Package money converts between human-readable decimal strings ("$0.01")
// and integer micro-units, the only unit the gateway does arithmetic in.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Micros is an amount expressed in millionths of a unit (e.g. of USDC).
// $1.00 is 1_000_000 Micros.
type Micros int64

const scale = 1_000_000

// Format renders micros as a "$X.YYYYYY" string with trailing zeros trimmed,
// always keeping at least two decimal digits.
func Format(m Micros) string {
	neg := m < 0
	if neg {
		m = -m
	}
	whole := int64(m) / scale
	frac := int64(m) % scale
	s := fmt.Sprintf("%d.%06d", whole, frac)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "00"
	} else if idx := strings.Index(s, "."); idx >= 0 && len(s)-idx-1 < 2 {
		s += strings.Repeat("0", 2-(len(s)-idx-1))
	}
	if neg {
		s = "-" + s
	}
	return "$" + s
}

// Rounding controls how a fractional micro-unit amount is rounded during parsing.
type Rounding int

const (
	// RoundAwayFromZero rounds the fractional remainder up in magnitude.
	// Used for gateway-side pricing (discovered markup) where under-quoting
	// would let a caller underpay.
	RoundAwayFromZero Rounding = iota
	// RoundTowardZero truncates the fractional remainder.
	// Used for budget checks against caller-supplied caps so a budget string
	// is never silently treated as larger than what was written.
	RoundTowardZero
)

// Parse converts a human decimal string, optionally prefixed with "$", into
// micro-units. Accepts "0.01", "$0.01", "1", "$1.5".
func Parse(s string, rounding Rounding) (Micros, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	wholeStr := parts[0]
	if wholeStr == "" {
		wholeStr = "0"
	}
	whole, err := strconv.ParseInt(wholeStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}

	var fracMicros int64
	var roundUp bool
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > 6 {
			roundUp = strings.Trim(fracStr[6:], "0") != ""
			fracStr = fracStr[:6]
		}
		fracStr = fracStr + strings.Repeat("0", 6-len(fracStr))
		fracMicros, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("money: invalid amount %q: %w", s, err)
		}
	}

	total := whole*scale + fracMicros
	if roundUp && rounding == RoundAwayFromZero {
		total++
	}
	if neg {
		total = -total
	}
	return Micros(total), nil
}

// MarkUp computes the discovered-capability gateway cost from a provider
// cost: max(2*provider, provider+$0.005), rounded up to the nearest $0.001.
func MarkUp(provider Micros) Micros {
	doubled := provider * 2
	floor := provider + 5000 // $0.005
	base := doubled
	if floor > base {
		base = floor
	}
	const step = 1000 // $0.001
	rounded := Micros(int64(math.Ceil(float64(base) / float64(step))) * step)
	return rounded
}
