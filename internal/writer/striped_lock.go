package writer

import (
	"hash/fnv"
	"sync"
)

// StripedLock gives each patient_id a short-lived exclusive critical
// section without allocating one mutex per patient (spec.md §4.3, §5:
// "stripes sized to keep contention negligible, ≥1024 stripes"). Fairness
// is not required per the spec, so a plain sync.Mutex per stripe is
// sufficient.
type StripedLock struct {
	stripes []sync.Mutex
}

// NewStripedLock builds a lock table with the given stripe count. Counts
// below 1024 are still honored (tests use small counts to make collisions
// observable) — production wiring always passes writer.per_patient_stripes,
// default 1024.
func NewStripedLock(stripes int) *StripedLock {
	if stripes <= 0 {
		stripes = 1024
	}
	return &StripedLock{stripes: make([]sync.Mutex, stripes)}
}

// Lock acquires the stripe for patientID and returns the unlock func.
func (s *StripedLock) Lock(patientID string) (unlock func()) {
	m := &s.stripes[s.index(patientID)]
	m.Lock()
	return m.Unlock
}

func (s *StripedLock) index(patientID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(patientID))
	return int(h.Sum32() % uint32(len(s.stripes)))
}
