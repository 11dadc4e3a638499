// Package source implements the data source adapters that turn the
// assessment table (a Google Sheet export, a CSV blob) into patient records,
// plus a TTL snapshot cache that fronts any of them.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/ehr/physio/internal/domain/evolution"
)

// Mandatory columns of the assessment table.
const (
	ColumnID   = "ID"
	ColumnName = "Nombre"
	ColumnDate = "Fecha Evolución"
)

// DefaultDateLayouts are tried in order when parsing the assessment date.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

// Skip reasons reported to observers.
const (
	ReasonMissingID = "missing_id"
	ReasonBadDate   = "bad_date"
	ReasonDuplicate = "duplicate"
)

// TableStats describes what happened while reading a table.
type TableStats struct {
	Rows       int
	Records    int
	MissingID  int
	BadDate    int
	Duplicates int
}

type recordKey struct {
	id  string
	day time.Time
}

// ParseTable reads a CSV assessment table. The first row is the header; every
// column other than the mandatory ones becomes an attribute.
func ParseTable(r io.Reader, layouts []string) ([]evolution.PatientRecord, TableStats, error) {
	var stats TableStats
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, stats, fmt.Errorf("%w: empty table", evolution.ErrDataUnavailable)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("%w: read header: %v", evolution.ErrDataUnavailable, err)
	}

	columns := make([]string, len(header))
	idx := map[string]int{}
	for i, h := range header {
		h = normalizeHeader(h)
		columns[i] = h
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	for _, required := range []string{ColumnID, ColumnName, ColumnDate} {
		if _, ok := idx[required]; !ok {
			return nil, stats, fmt.Errorf("%w: missing column %q", evolution.ErrDataUnavailable, required)
		}
	}
	idCol, nameCol, dateCol := idx[ColumnID], idx[ColumnName], idx[ColumnDate]

	var records []evolution.PatientRecord
	seen := map[recordKey]struct{}{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%w: read row %d: %v", evolution.ErrDataUnavailable, stats.Rows+2, err)
		}
		stats.Rows++

		id := NormalizeID(cell(row, idCol))
		if id == "" {
			stats.MissingID++
			continue
		}
		date, ok := parseDate(cell(row, dateCol), layouts)
		if !ok {
			stats.BadDate++
			continue
		}
		key := recordKey{id: id, day: date}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		attrs := make(map[string]evolution.Value, len(columns))
		for i, col := range columns {
			if i == idCol || i == nameCol || i == dateCol || col == "" {
				continue
			}
			if _, exists := attrs[col]; exists {
				continue
			}
			v := strings.TrimSpace(cell(row, i))
			if v == "" {
				attrs[col] = evolution.Missing()
				continue
			}
			attrs[col] = evolution.Text(v)
		}

		records = append(records, evolution.PatientRecord{
			PatientID:      id,
			PatientName:    strings.TrimSpace(cell(row, nameCol)),
			AssessmentDate: date,
			Attributes:     attrs,
		})
	}
	stats.Records = len(records)
	return records, stats, nil
}

// NormalizeID trims the identifier and drops the ".0" suffix spreadsheets add
// to integer ids. Non-numeric ids are kept as written.
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)
	trimmed, ok := strings.CutSuffix(s, ".0")
	if !ok {
		return s
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return s
	}
	return trimmed
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return norm.NFC.String(strings.TrimSpace(h))
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func parseDate(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return evolution.Day(t), true
		}
	}
	return time.Time{}, false
}
