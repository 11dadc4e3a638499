package evolution

import (
	"context"
	"errors"
)

// ErrDataUnavailable is returned by record sources when the upstream table
// cannot be fetched or does not have the required columns.
var ErrDataUnavailable = errors.New("data unavailable")

// RecordSource supplies the current snapshot of assessment records. The
// returned slice must not be modified by callers.
type RecordSource interface {
	Records(ctx context.Context) ([]PatientRecord, error)
}

// RecordRepository is a persistent RecordSource that can be loaded from
// another source.
type RecordRepository interface {
	RecordSource
	Upsert(ctx context.Context, records []PatientRecord) (int, error)
}
