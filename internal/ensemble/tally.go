package ensemble

import (
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// VoteTally counts, per identity, how many layers voted for it
type VoteTally map[string]int

// Add records one vote for key
func (t VoteTally) Add(key string) {
	t[key]++
}

// Merge adds every vote of other. Merging is commutative.
func (t VoteTally) Merge(other VoteTally) {
	for key, n := range other {
		t[key] += n
	}
}

// Count returns the votes for key
func (t VoteTally) Count(key string) int {
	return t[key]
}

// ApplyQuorum marks each key Present when it has at least quorum votes.
// Keys outside keys are ignored; keys without votes are Absent.
func ApplyQuorum(keys []string, tally VoteTally, quorum int) domain.AttendanceRecord {
	record := domain.NewAttendanceRecord(keys)
	for _, key := range keys {
		if tally.Count(key) >= quorum {
			record[key] = domain.StatusPresent
		}
	}
	return record
}
