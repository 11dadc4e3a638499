package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type recordRepoPG struct{ pool *pgxpool.Pool }

// NewRecordRepoPG stores assessment records in the evolution_record table.
func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) Records(ctx context.Context) ([]PatientRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT patient_id, patient_name, assessment_date, attributes
		FROM evolution_record ORDER BY patient_id, assessment_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query evolution_record: %v", ErrDataUnavailable, err)
	}
	defer rows.Close()

	var items []PatientRecord
	for rows.Next() {
		var (
			rec   PatientRecord
			day   time.Time
			attrs []byte
		)
		if err := rows.Scan(&rec.PatientID, &rec.PatientName, &day, &attrs); err != nil {
			return nil, fmt.Errorf("%w: scan evolution_record: %v", ErrDataUnavailable, err)
		}
		rec.AssessmentDate = Day(day)
		if rec.Attributes, err = DecodeAttributes(attrs); err != nil {
			return nil, fmt.Errorf("%w: patient %s: %v", ErrDataUnavailable, rec.PatientID, err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	return items, nil
}

func (r *recordRepoPG) Upsert(ctx context.Context, records []PatientRecord) (int, error) {
	batch := &pgx.Batch{}
	for _, rec := range records {
		attrs, err := EncodeAttributes(rec.Attributes)
		if err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO evolution_record (patient_id, patient_name, assessment_date, attributes, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (patient_id, assessment_date)
			DO UPDATE SET patient_name = EXCLUDED.patient_name, attributes = EXCLUDED.attributes, updated_at = NOW()`,
			rec.PatientID, rec.PatientName, Day(rec.AssessmentDate), attrs)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range records {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("upsert patient %s: %w", records[i].PatientID, err)
		}
	}
	return len(records), nil
}

// EncodeAttributes serializes the present values of a record as a JSON object.
func EncodeAttributes(attrs map[string]Value) ([]byte, error) {
	m := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if v.Present() {
			m[k] = v.raw
		}
	}
	return json.Marshal(m)
}

// DecodeAttributes is the inverse of EncodeAttributes. Numbers keep their
// textual form and nulls become Missing.
func DecodeAttributes(b []byte) (map[string]Value, error) {
	if len(b) == 0 {
		return map[string]Value{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	out := make(map[string]Value, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case nil:
			out[k] = Missing()
		case string:
			out[k] = Text(tv)
		case json.Number:
			out[k] = Text(tv.String())
		case bool:
			if tv {
				out[k] = Text("true")
			} else {
				out[k] = Text("false")
			}
		default:
			return nil, fmt.Errorf("decode attributes: %q has unsupported type %T", k, v)
		}
	}
	return out, nil
}
