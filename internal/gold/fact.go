package gold

import (
	"cmp"
	"slices"
	"time"

	"github.com/xtxerr/medallion/internal/silver"
)

// Fact is a Silver row plus the per-row fields every family groups or
// filters on.
type Fact struct {
	silver.Event

	EventDate time.Time
	Hour      uint8
	Weekday   uint8 // ISO: 1=Monday .. 7=Sunday
	IsError   bool
	IsBot     bool
	Category  Category
}

// Suspicious reports the computed flag.
func (f *Fact) Suspicious() bool { return f.IsSuspiciousCalc == 1 }

// HighRiskIP reports whether the event came from a high or critical IP.
func (f *Fact) HighRiskIP() bool {
	return f.IPRiskLevel == "high" || f.IPRiskLevel == "critical"
}

// AuthFailure reports a 401 or 403 response.
func (f *Fact) AuthFailure() bool {
	return f.StatusCode == 401 || f.StatusCode == 403
}

// FailedLogin reports an auth failure on an authentication URL.
func (f *Fact) FailedLogin() bool {
	return f.Category == CategoryAuthentication && f.AuthFailure()
}

// Project derives the facts for every Silver row, keeping input order.
func Project(events []silver.Event, classify Classifier, isBot BotDetector) []Fact {
	facts := make([]Fact, len(events))
	for i, e := range events {
		ts := e.EventTS.UTC()
		wd := uint8(ts.Weekday())
		if wd == 0 {
			wd = 7
		}
		facts[i] = Fact{
			Event:     e,
			EventDate: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			Hour:      uint8(ts.Hour()),
			Weekday:   wd,
			IsError:   e.StatusCode >= 400,
			IsBot:     isBot(e.UserAgent),
			Category:  classify(e.URLPath),
		}
	}
	return facts
}

// =============================================================================
// Grouping helpers
// =============================================================================

// group partitions facts by key. Keys are returned in first-seen order and
// each group keeps input order.
func group[K comparable](facts []Fact, key func(*Fact) K) ([]K, map[K][]*Fact) {
	var keys []K
	groups := make(map[K][]*Fact)
	for i := range facts {
		f := &facts[i]
		k := key(f)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], f)
	}
	return keys, groups
}

type distinct[T comparable] map[T]struct{}

func (d distinct[T]) add(v T) { d[v] = struct{}{} }

// tally counts string occurrences.
type tally map[string]int

// top returns the most frequent value, ties broken by the smallest string.
// It returns "" for an empty tally.
func (t tally) top() string {
	var best string
	bestN := 0
	for v, n := range t {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

func ratio(n uint64, total uint64) float64 {
	return float64(n) / float64(max(total, 1))
}

func sortDesc[T any](rows []T, score func(T) float64, key func(T) string) {
	slices.SortFunc(rows, func(a, b T) int {
		if c := cmp.Compare(score(b), score(a)); c != 0 {
			return c
		}
		return cmp.Compare(key(a), key(b))
	})
}
