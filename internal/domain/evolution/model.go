package evolution

import (
	"encoding/json"
	"strconv"
	"time"
)

// NotAvailable is shown for missing values and non-comparable deltas.
const NotAvailable = "NA"

// DateLayout is the wire format for assessment dates.
const DateLayout = "2006-01-02"

// Value is a raw attribute value as recorded in the source table. It may be
// text ("Sí", "No"), a number, or absent.
type Value struct {
	raw     string
	present bool
}

func Text(s string) Value {
	return Value{raw: s, present: true}
}

func Number(f float64) Value {
	return Value{raw: strconv.FormatFloat(f, 'f', -1, 64), present: true}
}

func Missing() Value {
	return Value{}
}

// Present reports whether the source had a value for the attribute.
func (v Value) Present() bool { return v.present }

// Raw returns the value verbatim, or NotAvailable when it is missing.
func (v Value) Raw() string {
	if !v.present {
		return NotAvailable
	}
	return v.raw
}

func (v Value) String() string { return v.Raw() }

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

// PatientRecord is one assessment ("evolución") of a patient on a given date.
type PatientRecord struct {
	PatientID      string           `json:"patient_id"`
	PatientName    string           `json:"patient_name"`
	AssessmentDate time.Time        `json:"assessment_date"`
	Attributes     map[string]Value `json:"attributes"`
}

// Lookup returns the value recorded for attribute, or Missing when the record
// has no such column.
func (r *PatientRecord) Lookup(attribute string) Value {
	if r == nil || r.Attributes == nil {
		return Missing()
	}
	v, ok := r.Attributes[attribute]
	if !ok {
		return Missing()
	}
	return v
}

// PatientSummary is an entry of the patient search list.
type PatientSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// SearchLabel builds the label used by the patient picker.
func SearchLabel(name, id string) string {
	return name + " - ID: " + id
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
