package attribution

import (
	"math"
	"sort"

	"github.com/sells-group/keyword-cli/internal/model"
)

// sum is a Neumaier-compensated running total.
type sum struct {
	total float64
	comp  float64
}

func (s *sum) add(v float64) {
	t := s.total + v
	if math.Abs(s.total) >= math.Abs(v) {
		s.comp += (s.total - t) + v
	} else {
		s.comp += (v - t) + s.total
	}
	s.total = t
}

func (s sum) value() float64 {
	return s.total + s.comp
}

// Ledger accumulates attributed revenue per key. Values are kept unrounded.
// A Ledger has a single owner and is not safe for concurrent use.
type Ledger struct {
	entries map[model.RevenueKey]*sum
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[model.RevenueKey]*sum)}
}

// Add credits amount to key.
func (l *Ledger) Add(key model.RevenueKey, amount float64) {
	s, ok := l.entries[key]
	if !ok {
		s = &sum{}
		l.entries[key] = s
	}
	s.add(amount)
}

// Record credits an emission.
func (l *Ledger) Record(e Emission) {
	l.Add(e.Key, e.Amount)
}

// Merge folds other into l. Merge order does not affect the result beyond
// floating point tolerance.
func (l *Ledger) Merge(other *Ledger) {
	if other == nil {
		return
	}
	for key, s := range other.entries {
		l.Add(key, s.total)
		l.Add(key, s.comp)
	}
}

// Get returns the accumulated revenue for key.
func (l *Ledger) Get(key model.RevenueKey) float64 {
	if s, ok := l.entries[key]; ok {
		return s.value()
	}
	return 0
}

// Len returns the number of distinct keys.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Total returns the revenue summed over every key.
func (l *Ledger) Total() float64 {
	var all sum
	for _, key := range l.Keys() {
		all.add(l.entries[key].value())
	}
	return all.value()
}

// Keys returns the ledger's keys ordered by domain then keyword.
func (l *Ledger) Keys() []model.RevenueKey {
	keys := make([]model.RevenueKey, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Domain != keys[j].Domain {
			return keys[i].Domain < keys[j].Domain
		}
		return keys[i].Keyword < keys[j].Keyword
	})
	return keys
}

// Snapshot returns a copy of the ledger as a plain map.
func (l *Ledger) Snapshot() map[model.RevenueKey]float64 {
	out := make(map[model.RevenueKey]float64, len(l.entries))
	for k, s := range l.entries {
		out[k] = s.value()
	}
	return out
}
