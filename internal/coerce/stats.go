package coerce

import (
	"sort"
	"sync"
)

// Stats counts data-quality degradations per field. A degradation is a
// value that was missing or unparsable and got a sentinel default.
//
// Stats is safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	missing   map[string]int64
	malformed map[string]int64
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{
		missing:   make(map[string]int64),
		malformed: make(map[string]int64),
	}
}

// Observe records the outcome of one parse. ok=true is ignored.
func (s *Stats) Observe(field string, raw Raw, ok bool) {
	if ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw.IsEmpty() {
		s.missing[field]++
	} else {
		s.malformed[field]++
	}
}

// Merge adds other's counts into s.
func (s *Stats) Merge(other *Stats) {
	if other == nil {
		return
	}
	other.mu.Lock()
	missing := copyCounts(other.missing)
	malformed := copyCounts(other.malformed)
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range missing {
		s.missing[k] += v
	}
	for k, v := range malformed {
		s.malformed[k] += v
	}
}

// Missing returns a copy of the missing-value counts.
func (s *Stats) Missing() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounts(s.missing)
}

// Malformed returns a copy of the unparsable-value counts.
func (s *Stats) Malformed() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounts(s.malformed)
}

// Total returns the number of degraded values.
func (s *Stats) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, v := range s.missing {
		n += v
	}
	for _, v := range s.malformed {
		n += v
	}
	return n
}

// LogArgs flattens the counts into slog key/value pairs sorted by key.
func (s *Stats) LogArgs() []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	flat := make(map[string]int64, len(s.missing)+len(s.malformed))
	for k, v := range s.missing {
		flat["missing."+k] = v
	}
	for k, v := range s.malformed {
		flat["malformed."+k] = v
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, flat[k])
	}
	return args
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
