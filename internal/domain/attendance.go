package domain

import "sort"

// AttendanceStatus is the verdict for one identity in one recognition run
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "Present"
	StatusAbsent  AttendanceStatus = "Absent"
)

// AttendanceRecord maps every gallery identity to its verdict
type AttendanceRecord map[string]AttendanceStatus

// NewAttendanceRecord seeds every key as Absent
func NewAttendanceRecord(keys []string) AttendanceRecord {
	record := make(AttendanceRecord, len(keys))
	for _, k := range keys {
		record[k] = StatusAbsent
	}
	return record
}

// Present returns the keys marked Present, sorted
func (r AttendanceRecord) Present() []string {
	keys := make([]string, 0, len(r))
	for k, s := range r {
		if s == StatusPresent {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Summary counts verdicts in the record
type Summary struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
}

func (r AttendanceRecord) Summary() Summary {
	s := Summary{Total: len(r)}
	for _, status := range r {
		if status == StatusPresent {
			s.Present++
		}
	}
	s.Absent = s.Total - s.Present
	return s
}
