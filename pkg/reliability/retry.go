package reliability

import "time"

// delays is the fixed retry delay schedule of spec.md §4.4: first attempt
// immediate, then three retries with increasing backoff. It is a closed
// schedule, not a generated one — the gateway tries at most 4 attempts.
var delays = []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond, 4500 * time.Millisecond}

// MaxAttempts is len(delays): one initial attempt plus three retries.
const MaxAttempts = 4
