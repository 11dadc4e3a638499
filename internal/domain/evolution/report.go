package evolution

import (
	"fmt"
	"time"
)

// Column headers used when a report is rendered as tables.
const (
	ColumnAttribute = "Atributo"
	ColumnRecent    = "Fecha Evolutiva"
	ColumnBaseline  = "Fecha Comparativa"
	ColumnResult    = "Resultado"
)

// ComparisonRow compares one attribute across the two dates.
type ComparisonRow struct {
	Attribute string `json:"attribute"`
	Recent    Value  `json:"recent"`
	Baseline  Value  `json:"baseline"`
	Delta     Delta  `json:"delta"`
}

// Section is the table for one group, or one subgroup of a nested group.
type Section struct {
	Group    string          `json:"group"`
	Subgroup string          `json:"subgroup,omitempty"`
	Rows     []ComparisonRow `json:"rows"`
}

// Title is the heading shown above the section's table.
func (s Section) Title() string {
	if s.Subgroup == "" {
		return s.Group
	}
	return s.Group + " / " + s.Subgroup
}

// ComparisonReport is the full comparison between a recent assessment and a
// baseline assessment of the same patient.
type ComparisonReport struct {
	PatientID    string    `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	RecentDate   time.Time `json:"recent_date"`
	BaselineDate time.Time `json:"baseline_date"`
	Sections     []Section `json:"sections"`
}

// Summary counts rows by outcome.
type Summary struct {
	Improved      int `json:"improved"`
	Regressed     int `json:"regressed"`
	Unchanged     int `json:"unchanged"`
	NotComparable int `json:"not_comparable"`
}

// RowCount returns the number of rows across all sections.
func (r *ComparisonReport) RowCount() int {
	n := 0
	for _, s := range r.Sections {
		n += len(s.Rows)
	}
	return n
}

func (r *ComparisonReport) Summary() Summary {
	var sum Summary
	for _, s := range r.Sections {
		for _, row := range s.Rows {
			d, ok := row.Delta.Float()
			switch {
			case !ok:
				sum.NotComparable++
			case d > 0:
				sum.Improved++
			case d < 0:
				sum.Regressed++
			default:
				sum.Unchanged++
			}
		}
	}
	return sum
}

// BuildReport lays out a comparison of recent against baseline following the
// taxonomy's declaration order. A malformed taxonomy fails the whole build.
func BuildReport(recent, baseline *PatientRecord, tax Taxonomy) (*ComparisonReport, error) {
	if recent == nil || baseline == nil {
		return nil, fmt.Errorf("build report: %w", ErrRecordNotFound)
	}

	sections := make([]Section, 0, len(tax.Groups))
	for _, g := range tax.Groups {
		switch g.Kind {
		case GroupFlat:
			sections = append(sections, buildSection(g.Name, "", g.Attributes, recent, baseline))
		case GroupNested:
			for _, sub := range g.Subgroups {
				if sub.Name == "" {
					return nil, fmt.Errorf("%w: subgroup without name in %q", ErrMalformedTaxonomy, g.Name)
				}
				sections = append(sections, buildSection(g.Name, sub.Name, sub.Attributes, recent, baseline))
			}
		default:
			return nil, fmt.Errorf("%w: group %q has unknown kind %s", ErrMalformedTaxonomy, g.Name, g.Kind)
		}
	}

	return &ComparisonReport{
		PatientID:    recent.PatientID,
		PatientName:  recent.PatientName,
		RecentDate:   Day(recent.AssessmentDate),
		BaselineDate: Day(baseline.AssessmentDate),
		Sections:     sections,
	}, nil
}

func buildSection(group, subgroup string, attributes []string, recent, baseline *PatientRecord) Section {
	rows := make([]ComparisonRow, 0, len(attributes))
	for _, attr := range attributes {
		a := recent.Lookup(attr)
		b := baseline.Lookup(attr)
		rows = append(rows, ComparisonRow{
			Attribute: attr,
			Recent:    a,
			Baseline:  b,
			Delta:     ComputeDelta(a, b),
		})
	}
	return Section{Group: group, Subgroup: subgroup, Rows: rows}
}
