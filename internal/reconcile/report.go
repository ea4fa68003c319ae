package reconcile

import (
	"time"

	"github.com/cameronsjo/berth/internal/lock"
)

// ErrorKind classifies why a location contributed no fresh snapshot.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindTransport ErrorKind = "transport"
	KindDecode    ErrorKind = "decode"
)

// LocationResult is the outcome of one remote location in a cycle.
type LocationResult struct {
	Location string
	Staging  string
	// Records is the number of decoded records, or the size of the
	// trusted set carried over when the location failed.
	Records int
	Kind    ErrorKind
	Err     error
}

// OK reports whether the location produced a fresh snapshot.
func (l LocationResult) OK() bool {
	return l.Err == nil
}

// CycleReport describes one reconciliation cycle.
type CycleReport struct {
	ID        string
	Started   time.Time
	Duration  time.Duration
	Locations []LocationResult

	Acquired []string
	Failed   []string
	Released []string
	// ReleaseErrors are unlock failures; the entries were removed anyway.
	ReleaseErrors []error
}

// FailedLocations returns the number of locations that fell back to their
// previous snapshot.
func (r *CycleReport) FailedLocations() int {
	n := 0
	for _, l := range r.Locations {
		if !l.OK() {
			n++
		}
	}
	return n
}

// Status is a point-in-time view of the reconciler for status reporting.
type Status struct {
	Cycles    int
	LastCycle *CycleReport
	Entries   []lock.Entry
	// LastSuccess is the last time each location produced a fresh snapshot.
	LastSuccess map[string]time.Time
}

// Counts returns the number of locked and failed entries.
func (s Status) Counts() (locked, failed int) {
	for _, e := range s.Entries {
		if e.State == lock.Locked {
			locked++
		} else {
			failed++
		}
	}
	return locked, failed
}
