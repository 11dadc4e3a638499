package evolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/physio/pkg/pagination"
)

// ErrSameDate is returned when both comparison dates are the same day.
var ErrSameDate = errors.New("comparison dates must differ")

// ComparisonStatus tells the caller whether a report was produced.
type ComparisonStatus string

const (
	StatusReady            ComparisonStatus = "ready"
	StatusInsufficientData ComparisonStatus = "insufficient_data"
)

// Timeline lists the assessment dates available for a patient.
type Timeline struct {
	PatientID   string      `json:"patient_id"`
	PatientName string      `json:"patient_name"`
	Dates       []time.Time `json:"dates"`
	Comparable  bool        `json:"comparable"`
}

// Comparison is the result of a comparison request. Report is nil unless
// Status is StatusReady.
type Comparison struct {
	Status         ComparisonStatus  `json:"status"`
	PatientID      string            `json:"patient_id"`
	PatientName    string            `json:"patient_name"`
	AvailableDates []time.Time       `json:"available_dates,omitempty"`
	Report         *ComparisonReport `json:"report,omitempty"`
	Summary        *Summary          `json:"summary,omitempty"`
}

// ReportObserver receives the outcome of each comparison.
type ReportObserver interface {
	ObserveComparison(status string, elapsed time.Duration)
}

type Service struct {
	source   RecordSource
	taxonomy Taxonomy
	logger   zerolog.Logger
	observer ReportObserver
}

func NewService(source RecordSource, taxonomy Taxonomy, logger zerolog.Logger) *Service {
	return &Service{source: source, taxonomy: taxonomy, logger: logger}
}

// SetObserver attaches an optional ReportObserver.
func (s *Service) SetObserver(o ReportObserver) {
	s.observer = o
}

func (s *Service) Taxonomy() Taxonomy {
	return s.taxonomy
}

// SearchPatients returns a page of the patient search list filtered by query.
func (s *Service) SearchPatients(ctx context.Context, query string, limit, offset int) ([]PatientSummary, int, error) {
	records, err := s.source.Records(ctx)
	if err != nil {
		return nil, 0, err
	}
	all := FilterPatients(Patients(records), query)
	start, end := pagination.Bounds(limit, offset, len(all))
	page := make([]PatientSummary, end-start)
	copy(page, all[start:end])
	return page, len(all), nil
}

// Timeline returns the available dates of a patient.
func (s *Service) Timeline(ctx context.Context, patientID string) (*Timeline, error) {
	sel, err := s.selection(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return &Timeline{
		PatientID:   sel.PatientID,
		PatientName: sel.PatientName,
		Dates:       sel.AvailableDates(),
		Comparable:  sel.Comparable(),
	}, nil
}

// Compare builds the report of recent against baseline for a patient. A
// patient with fewer than two dates yields StatusInsufficientData. Zero dates
// default to the newest assessment and the one before it.
func (s *Service) Compare(ctx context.Context, patientID string, recent, baseline time.Time) (*Comparison, error) {
	start := time.Now()
	result, err := s.compare(ctx, patientID, recent, baseline)
	if s.observer != nil {
		status := "error"
		if err == nil {
			status = string(result.Status)
		}
		s.observer.ObserveComparison(status, time.Since(start))
	}
	return result, err
}

func (s *Service) compare(ctx context.Context, patientID string, recent, baseline time.Time) (*Comparison, error) {
	sel, err := s.selection(ctx, patientID)
	if err != nil {
		return nil, err
	}

	out := &Comparison{
		PatientID:      sel.PatientID,
		PatientName:    sel.PatientName,
		AvailableDates: sel.AvailableDates(),
	}
	if !sel.Comparable() {
		out.Status = StatusInsufficientData
		s.logger.Debug().Str("patient_id", patientID).Msg("not enough assessments to compare")
		return out, nil
	}

	recent, baseline = sel.DefaultDates(recent, baseline)
	if baseline.IsZero() {
		return nil, fmt.Errorf("%w: no assessment of patient %s before %s",
			ErrRecordNotFound, sel.PatientID, Day(recent).Format(DateLayout))
	}
	if Day(recent).Equal(Day(baseline)) {
		return nil, ErrSameDate
	}
	a, err := sel.RecordAt(recent)
	if err != nil {
		return nil, err
	}
	b, err := sel.RecordAt(baseline)
	if err != nil {
		return nil, err
	}

	report, err := BuildReport(a, b, s.taxonomy)
	if err != nil {
		s.logger.Error().Err(err).Msg("report build failed")
		return nil, err
	}
	sum := report.Summary()
	out.Status = StatusReady
	out.Report = report
	out.Summary = &sum
	return out, nil
}

func (s *Service) selection(ctx context.Context, patientID string) (*Selection, error) {
	if patientID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrPatientNotFound)
	}
	records, err := s.source.Records(ctx)
	if err != nil {
		return nil, err
	}
	return Select(records, patientID)
}
