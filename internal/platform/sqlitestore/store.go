// Package sqlitestore keeps a local snapshot of assessment records in a
// SQLite file, for single-node deployments and offline CLI use.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ehr/physio/internal/domain/evolution"
)

const schema = `
CREATE TABLE IF NOT EXISTS evolution_record (
	patient_id      TEXT NOT NULL,
	patient_name    TEXT NOT NULL DEFAULT '',
	assessment_date TEXT NOT NULL,
	attributes      TEXT NOT NULL DEFAULT '{}',
	updated_at      INTEGER NOT NULL,
	PRIMARY KEY (patient_id, assessment_date)
);
CREATE INDEX IF NOT EXISTS idx_evolution_record_name ON evolution_record (patient_name);
`

const upsertSQL = `INSERT INTO evolution_record (patient_id, patient_name, assessment_date, attributes, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (patient_id, assessment_date) DO UPDATE SET
	patient_name = excluded.patient_name,
	attributes = excluded.attributes,
	updated_at = excluded.updated_at`

// Store is a RecordRepository backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create sqlite schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Records(ctx context.Context) ([]evolution.PatientRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT patient_id, patient_name, assessment_date, attributes
		FROM evolution_record ORDER BY patient_id, assessment_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", evolution.ErrDataUnavailable, err)
	}
	defer rows.Close()

	var records []evolution.PatientRecord
	for rows.Next() {
		var (
			rec   evolution.PatientRecord
			date  string
			attrs string
		)
		if err := rows.Scan(&rec.PatientID, &rec.PatientName, &date, &attrs); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", evolution.ErrDataUnavailable, err)
		}
		rec.AssessmentDate, err = evolution.ParseDay(date)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s has bad date %q", evolution.ErrDataUnavailable, rec.PatientID, date)
		}
		rec.Attributes, err = evolution.DecodeAttributes([]byte(attrs))
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", evolution.ErrDataUnavailable, rec.PatientID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", evolution.ErrDataUnavailable, err)
	}
	return records, nil
}

// Upsert writes records in one transaction, replacing rows with the same
// patient and date.
func (s *Store) Upsert(ctx context.Context, records []evolution.PatientRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	for _, rec := range records {
		attrs, err := evolution.EncodeAttributes(rec.Attributes)
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", rec.PatientID, err)
		}
		day := evolution.Day(rec.AssessmentDate).Format(evolution.DateLayout)
		if _, err := stmt.ExecContext(ctx, rec.PatientID, rec.PatientName, day, string(attrs), now); err != nil {
			return 0, fmt.Errorf("upsert %s %s: %w", rec.PatientID, day, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return len(records), nil
}
