package budget

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"glot/internal/kv"
)

// Result reports one consume decision.
type Result struct {
	OK       bool
	Used     int64
	NextUsed int64
}

// Gate meters consumption against caps.
type Gate struct {
	kv         *kv.Store
	counterTTL time.Duration
	now        func() time.Time
}

// NewGate builds a budget gate over the TTL KV. counterTTL bounds how long
// stale period counters linger.
func NewGate(store *kv.Store, counterTTL time.Duration) *Gate {
	return &Gate{kv: store, counterTTL: counterTTL, now: time.Now}
}

// PeriodKey returns the calendar-month period for a timestamp.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func counterKey(budgetKey, period, scope string) string {
	return fmt.Sprintf("usage.budget.v1.%s.%s.%s", budgetKey, period, scope)
}

// Consume checks and records usage for the current period. A nil max tracks
// usage without ever rejecting. On rejection the counter is left untouched
// so a later period can retry.
func (g *Gate) Consume(ctx context.Context, scope, budgetKey string, max *int64, amount int64) (Result, error) {
	if amount < 0 {
		amount = 0
	}
	key := counterKey(budgetKey, PeriodKey(g.now()), scope)

	used, err := g.read(ctx, key)
	if err != nil {
		return Result{}, err
	}
	next := used + amount

	if max != nil && next > *max {
		return Result{OK: false, Used: used, NextUsed: used}, nil
	}

	if amount > 0 {
		if err := g.kv.Put(ctx, key, strconv.FormatInt(next, 10), g.counterTTL); err != nil {
			return Result{}, err
		}
	}
	return Result{OK: true, Used: used, NextUsed: next}, nil
}

// Usage reads the current period's counter without mutating it.
func (g *Gate) Usage(ctx context.Context, scope, budgetKey string) (int64, error) {
	return g.read(ctx, counterKey(budgetKey, PeriodKey(g.now()), scope))
}

func (g *Gate) read(ctx context.Context, key string) (int64, error) {
	raw, ok, err := g.kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	used, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A corrupt counter resets rather than blocking consumers.
		return 0, nil
	}
	return used, nil
}
