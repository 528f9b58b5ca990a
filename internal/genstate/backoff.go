package genstate

import (
	"math/rand/v2"
	"time"
)

const maxBackoffJitter = 30 * time.Second

// NextAttempt computes when a failed key becomes due again: exponential in
// the attempt count from base up to cap, plus jitter so sweep cycles do not
// re-issue whole batches at the same instant.
func NextAttempt(now time.Time, attempts int, base, cap time.Duration) time.Time {
	if attempts < 1 {
		attempts = 1
	}
	delay := cap
	if shift := attempts - 1; shift < 32 {
		if d := base << shift; d > 0 && d < cap {
			delay = d
		}
	}
	jitter := time.Duration(rand.Int64N(int64(maxBackoffJitter)))
	return now.Add(delay + jitter)
}
