package resilience

import "sync"

// TallySnapshot is a point-in-time copy of an ErrorTally.
type TallySnapshot struct {
	Validation int `json:"validation"`
	RateLimit  int `json:"rate_limit"`
	API        int `json:"api"`
	Other      int `json:"other"`
}

// Total returns the sum of all categories.
func (s TallySnapshot) Total() int {
	return s.Validation + s.RateLimit + s.API + s.Other
}

// Get returns the count for kind k.
func (s TallySnapshot) Get(k Kind) int {
	switch k {
	case KindValidation:
		return s.Validation
	case KindRateLimit:
		return s.RateLimit
	case KindAPI:
		return s.API
	}
	return s.Other
}

// ErrorTally counts classified failures. The zero value is ready to use and
// safe for concurrent callers. Counts only grow.
type ErrorTally struct {
	mu     sync.Mutex
	counts TallySnapshot
}

// Record classifies err, increments its category and returns the kind.
// Record does not touch err.
func (t *ErrorTally) Record(err error) Kind {
	k := KindOf(err)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch k {
	case KindValidation:
		t.counts.Validation++
	case KindRateLimit:
		t.counts.RateLimit++
	case KindAPI:
		t.counts.API++
	default:
		t.counts.Other++
	}
	return k
}

// Snapshot returns the current counts.
func (t *ErrorTally) Snapshot() TallySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}
