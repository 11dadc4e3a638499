package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/physio/internal/domain/evolution"
	"github.com/ehr/physio/internal/platform/blobstore"
)

// BlobSource reads the assessment table from a CSV export kept in a blob
// store, typically written by the snapshot command.
type BlobSource struct {
	store    blobstore.Store
	key      string
	layouts  []string
	logger   zerolog.Logger
	observer Observer
}

func NewBlobSource(store blobstore.Store, key string, layouts []string, logger zerolog.Logger) *BlobSource {
	return &BlobSource{
		store:    store,
		key:      key,
		layouts:  layouts,
		logger:   logger.With().Str("source", "blob").Str("key", key).Logger(),
		observer: nopObserver{},
	}
}

func (s *BlobSource) SetObserver(o Observer) {
	if o != nil {
		s.observer = o
	}
}

func (s *BlobSource) Records(ctx context.Context) ([]evolution.PatientRecord, error) {
	start := time.Now()
	records, err := s.records(ctx)
	s.observer.ObserveFetch("blob", err, time.Since(start), len(records))
	return records, err
}

func (s *BlobSource) records(ctx context.Context) ([]evolution.PatientRecord, error) {
	rc, err := s.store.Get(ctx, s.key)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, fmt.Errorf("%w: no export at %s", evolution.ErrDataUnavailable, s.key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", evolution.ErrDataUnavailable, err)
	}
	defer rc.Close()

	records, stats, err := ParseTable(rc, s.layouts)
	if err != nil {
		return nil, err
	}
	observeStats(s.observer, stats)
	s.logger.Debug().Int("rows", stats.Rows).Int("records", stats.Records).Msg("export parsed")
	return records, nil
}
