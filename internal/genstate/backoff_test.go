package genstate

import (
	"testing"
	"time"
)

func TestNextAttemptGrowsExponentially(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	base := 2 * time.Minute
	ceiling := time.Hour

	prev := time.Duration(0)
	for attempts := 1; attempts <= 4; attempts++ {
		next := NextAttempt(now, attempts, base, ceiling)
		delay := next.Sub(now)
		wantMin := base << (attempts - 1)
		if delay < wantMin || delay > wantMin+maxBackoffJitter {
			t.Fatalf("attempt %d: delay %s outside [%s, %s]", attempts, delay, wantMin, wantMin+maxBackoffJitter)
		}
		if delay+maxBackoffJitter < prev {
			t.Fatalf("attempt %d: delay shrank from %s to %s", attempts, prev, delay)
		}
		prev = delay
	}
}

func TestNextAttemptCapped(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	base := 2 * time.Minute
	ceiling := time.Hour

	for _, attempts := range []int{10, 40, 100} {
		delay := NextAttempt(now, attempts, base, ceiling).Sub(now)
		if delay < ceiling || delay > ceiling+maxBackoffJitter {
			t.Fatalf("attempts %d: delay %s outside [%s, %s]", attempts, delay, ceiling, ceiling+maxBackoffJitter)
		}
	}
}

func TestNextAttemptZeroAttemptsTreatedAsFirst(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	delay := NextAttempt(now, 0, 2*time.Minute, time.Hour).Sub(now)
	if delay < 2*time.Minute || delay > 2*time.Minute+maxBackoffJitter {
		t.Fatalf("delay %s", delay)
	}
}
