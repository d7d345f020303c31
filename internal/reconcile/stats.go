package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deriver computes the statistics of a collection. It must be pure: the same
// records and now always produce the same value.
type Deriver[T any, S any] func(records []T, now time.Time) S

var hundred = decimal.NewFromInt(100)

// Rate returns part/whole as a whole percent, rounded half away from zero.
// A zero or negative whole yields 0.
func Rate(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole)))
	return int(pct.Round(0).IntPart())
}

// CountBy groups records by key and counts each group.
func CountBy[T any](records []T, key func(T) string) map[string]int {
	out := map[string]int{}
	for _, rec := range records {
		out[key(rec)]++
	}
	return out
}

// CountWhere counts the records satisfying pred.
func CountWhere[T any](records []T, pred func(T) bool) int {
	n := 0
	for _, rec := range records {
		if pred(rec) {
			n++
		}
	}
	return n
}

// WithinWindow counts records whose timestamp falls in (now-window, now].
// Zero timestamps never count.
func WithinWindow[T any](records []T, ts func(T) time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	return CountWhere(records, func(rec T) bool {
		t := ts(rec)
		return !t.IsZero() && t.After(cutoff) && !t.After(now)
	})
}

// Counts ensures every key in keys exists in m, so empty collections still
// report every status with a zero.
func Counts(m map[string]int, keys ...string) map[string]int {
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[k] = 0
	}
	for k, v := range m {
		out[k] = v
	}
	return out
}
