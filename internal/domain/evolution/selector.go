package evolution

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrRecordNotFound  = errors.New("record not found")
)

// MinComparableDates is the number of distinct assessment dates needed for a
// comparison.
const MinComparableDates = 2

// Selection holds the records of one patient, most recent first.
type Selection struct {
	PatientID   string
	PatientName string
	records     []*PatientRecord
}

// Select collects the records of patientID. Records sharing a date with an
// earlier record are ignored, so the first occurrence wins.
func Select(records []PatientRecord, patientID string) (*Selection, error) {
	sel := &Selection{PatientID: patientID}
	seen := make(map[time.Time]bool)
	for i := range records {
		r := &records[i]
		if r.PatientID != patientID {
			continue
		}
		day := Day(r.AssessmentDate)
		if seen[day] {
			continue
		}
		seen[day] = true
		if sel.PatientName == "" {
			sel.PatientName = r.PatientName
		}
		sel.records = append(sel.records, r)
	}
	if len(sel.records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	sort.SliceStable(sel.records, func(i, j int) bool {
		return sel.records[i].AssessmentDate.After(sel.records[j].AssessmentDate)
	})
	return sel, nil
}

// AvailableDates returns the distinct assessment dates, most recent first.
func (s *Selection) AvailableDates() []time.Time {
	dates := make([]time.Time, len(s.records))
	for i, r := range s.records {
		dates[i] = Day(r.AssessmentDate)
	}
	return dates
}

// Comparable reports whether the patient has enough dates for a comparison.
func (s *Selection) Comparable() bool {
	return len(s.records) >= MinComparableDates
}

// DefaultDates fills unset (zero) dates: recent becomes the newest
// assessment and baseline the newest one before recent. Baseline stays zero
// when recent is the oldest assessment.
func (s *Selection) DefaultDates(recent, baseline time.Time) (time.Time, time.Time) {
	dates := s.AvailableDates()
	if recent.IsZero() && len(dates) > 0 {
		recent = dates[0]
	}
	if baseline.IsZero() {
		for _, d := range dates {
			if d.Before(Day(recent)) {
				baseline = d
				break
			}
		}
	}
	return recent, baseline
}

// RecordAt returns the record assessed on date's calendar day.
func (s *Selection) RecordAt(date time.Time) (*PatientRecord, error) {
	day := Day(date)
	for _, r := range s.records {
		if Day(r.AssessmentDate).Equal(day) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: patient %s on %s", ErrRecordNotFound, s.PatientID, day.Format(DateLayout))
}

// Patients builds the patient search list, sorted ascending by label.
func Patients(records []PatientRecord) []PatientSummary {
	seen := make(map[string]bool)
	var out []PatientSummary
	for _, r := range records {
		label := SearchLabel(r.PatientName, r.PatientID)
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, PatientSummary{ID: r.PatientID, Name: r.PatientName, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
