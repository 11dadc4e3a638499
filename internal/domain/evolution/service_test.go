package evolution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// -- Mock Source --

type mockSource struct {
	records []PatientRecord
	err     error
}

func (m *mockSource) Records(_ context.Context) ([]PatientRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

type mockObserver struct {
	mu       sync.Mutex
	statuses []string
}

func (m *mockObserver) ObserveComparison(status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

func sampleRecords() []PatientRecord {
	return []PatientRecord{
		rec("123", "Luis Torres", "2024-01-10", map[string]Value{
			"Realiza levantamiento de pelota de 1.5 kg": Text("0"),
			"Se sostiene en balancin en un solo pie.":   Text("No"),
		}),
		rec("123", "Luis Torres", "2024-03-05", map[string]Value{
			"Realiza levantamiento de pelota de 1.5 kg": Text("1"),
			"Se sostiene en balancin en un solo pie.":   Text("Sí"),
		}),
		rec("456", "Ana", "2024-02-01", nil),
		rec("789", "José Pérez", "2024-02-01", nil),
		rec("789", "José Pérez", "2024-04-01", nil),
	}
}

func newTestService() *Service {
	return NewService(&mockSource{records: sampleRecords()}, DefaultTaxonomy(), zerolog.Nop())
}

func TestService_Compare_Ready(t *testing.T) {
	svc := newTestService()
	obs := &mockObserver{}
	svc.SetObserver(obs)

	res, err := svc.Compare(context.Background(), "123", day("2024-03-05"), day("2024-01-10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusReady || res.Report == nil {
		t.Fatalf("expected ready report, got %+v", res)
	}
	if res.Report.RowCount() != DefaultTaxonomy().AttributeCount() {
		t.Errorf("unexpected row count %d", res.Report.RowCount())
	}
	first := res.Report.Sections[0].Rows[0]
	if v, ok := first.Delta.Float(); !ok || v != 1 {
		t.Errorf("expected delta 1, got %s", first.Delta)
	}
	if res.Summary == nil || res.Summary.Improved != 1 {
		t.Errorf("unexpected summary %+v", res.Summary)
	}
	if len(obs.statuses) != 1 || obs.statuses[0] != string(StatusReady) {
		t.Errorf("unexpected observed statuses %v", obs.statuses)
	}
}

func TestService_Compare_SignFollowsArgumentOrder(t *testing.T) {
	svc := newTestService()
	res, err := svc.Compare(context.Background(), "123", day("2024-01-10"), day("2024-03-05"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := res.Report.Sections[0].Rows[0].Delta.Float(); v != -1 {
		t.Errorf("expected delta -1, got %v", v)
	}
}

func TestService_Compare_InsufficientData(t *testing.T) {
	svc := newTestService()
	res, err := svc.Compare(context.Background(), "456", day("2024-02-01"), day("2024-01-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusInsufficientData {
		t.Errorf("expected insufficient data, got %s", res.Status)
	}
	if res.Report != nil {
		t.Error("expected no report for insufficient data")
	}
	if len(res.AvailableDates) != 1 {
		t.Errorf("expected 1 available date, got %d", len(res.AvailableDates))
	}
}

func TestService_Compare_DefaultDates(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	res, err := svc.Compare(ctx, "456", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusInsufficientData {
		t.Errorf("expected insufficient data without dates, got %s", res.Status)
	}

	res, err = svc.Compare(ctx, "789", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Report.RecentDate.Equal(day("2024-04-01")) || !res.Report.BaselineDate.Equal(day("2024-02-01")) {
		t.Errorf("expected newest pair, got %s vs %s", res.Report.RecentDate, res.Report.BaselineDate)
	}

	if _, err := svc.Compare(ctx, "789", day("2024-02-01"), time.Time{}); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound with no earlier assessment, got %v", err)
	}
}

func TestService_Compare_Errors(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Compare(ctx, "000", day("2024-03-05"), day("2024-01-10")); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
	if _, err := svc.Compare(ctx, "", day("2024-03-05"), day("2024-01-10")); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound for empty id, got %v", err)
	}
	if _, err := svc.Compare(ctx, "123", day("2024-03-05"), day("2024-03-05")); !errors.Is(err, ErrSameDate) {
		t.Errorf("expected ErrSameDate, got %v", err)
	}
	if _, err := svc.Compare(ctx, "123", day("2024-03-06"), day("2024-01-10")); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestService_Compare_SourceUnavailable(t *testing.T) {
	src := &mockSource{err: fmt.Errorf("%w: timeout", ErrDataUnavailable)}
	svc := NewService(src, DefaultTaxonomy(), zerolog.Nop())
	obs := &mockObserver{}
	svc.SetObserver(obs)

	_, err := svc.Compare(context.Background(), "123", day("2024-03-05"), day("2024-01-10"))
	if !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
	if len(obs.statuses) != 1 || obs.statuses[0] != "error" {
		t.Errorf("expected error to be observed, got %v", obs.statuses)
	}
}

func TestService_Compare_MalformedTaxonomy(t *testing.T) {
	tax := Taxonomy{Groups: []Group{{Name: "Broken"}}}
	svc := NewService(&mockSource{records: sampleRecords()}, tax, zerolog.Nop())
	_, err := svc.Compare(context.Background(), "123", day("2024-03-05"), day("2024-01-10"))
	if !errors.Is(err, ErrMalformedTaxonomy) {
		t.Errorf("expected ErrMalformedTaxonomy, got %v", err)
	}
}

func TestService_Compare_Concurrent(t *testing.T) {
	svc := newTestService()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Compare(context.Background(), "123", day("2024-03-05"), day("2024-01-10"))
			if err != nil {
				errs <- err
				return
			}
			if res.Report.RowCount() != DefaultTaxonomy().AttributeCount() {
				errs <- fmt.Errorf("unexpected row count %d", res.Report.RowCount())
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestService_Timeline(t *testing.T) {
	svc := newTestService()
	tl, err := svc.Timeline(context.Background(), "123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tl.Comparable || len(tl.Dates) != 2 {
		t.Errorf("unexpected timeline %+v", tl)
	}
	if tl.Dates[0].Format(DateLayout) != "2024-03-05" {
		t.Errorf("expected most recent first, got %s", tl.Dates[0].Format(DateLayout))
	}

	tl, err = svc.Timeline(context.Background(), "456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tl.Comparable {
		t.Error("expected single-date patient not to be comparable")
	}
}

func TestService_SearchPatients(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	items, total, err := svc.SearchPatients(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Errorf("expected 2 of 3, got %d of %d", len(items), total)
	}
	if items[0].Label != "Ana - ID: 456" {
		t.Errorf("expected sorted labels, got %s", items[0].Label)
	}

	items, total, _ = svc.SearchPatients(ctx, "", 2, 2)
	if total != 3 || len(items) != 1 {
		t.Errorf("expected last page with 1 item, got %d", len(items))
	}

	items, _, _ = svc.SearchPatients(ctx, "", 2, 10)
	if len(items) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(items))
	}

	items, total, _ = svc.SearchPatients(ctx, "jose", 20, 0)
	if total != 1 || items[0].ID != "789" {
		t.Errorf("expected José, got %+v", items)
	}
}
