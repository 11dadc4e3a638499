package source

import (
	"context"
	"time"

	"github.com/ehr/physio/internal/domain/evolution"
)

// Observer receives adapter and cache events. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveFetch(source string, err error, elapsed time.Duration, records int)
	ObserveCache(hit bool)
	ObserveSkippedRows(reason string, n int)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, error, time.Duration, int) {}
func (nopObserver) ObserveCache(bool) {}
func (nopObserver) ObserveSkippedRows(string, int) {}

func observeStats(o Observer, stats TableStats) {
	o.ObserveSkippedRows(ReasonMissingID, stats.MissingID)
	o.ObserveSkippedRows(ReasonBadDate, stats.BadDate)
	o.ObserveSkippedRows(ReasonDuplicate, stats.Duplicates)
}

type observedSource struct {
	name     string
	upstream evolution.RecordSource
	observer Observer
}

// Observed reports fetch outcomes of a source that does not do so itself,
// such as the SQL stores.
func Observed(name string, upstream evolution.RecordSource, o Observer) evolution.RecordSource {
	if o == nil {
		o = nopObserver{}
	}
	return &observedSource{name: name, upstream: upstream, observer: o}
}

func (s *observedSource) Records(ctx context.Context) ([]evolution.PatientRecord, error) {
	start := time.Now()
	records, err := s.upstream.Records(ctx)
	s.observer.ObserveFetch(s.name, err, time.Since(start), len(records))
	return records, err
}
