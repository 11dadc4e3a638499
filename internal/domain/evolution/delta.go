package evolution

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Delta is the difference between two attribute values. It is either a number
// rounded to two decimals or the NotAvailable sentinel.
type Delta struct {
	value     float64
	available bool
}

// NA is the sentinel delta for values that cannot be compared numerically.
var NA = Delta{}

// DeltaOf wraps a precomputed number.
func DeltaOf(v float64) Delta {
	return Delta{value: round2(v), available: true}
}

// ComputeDelta returns recent − baseline rounded to two decimals (half away
// from zero). If either side is missing or not a finite number it returns NA.
func ComputeDelta(recent, baseline Value) Delta {
	a, ok := parseNumber(recent)
	if !ok {
		return NA
	}
	b, ok := parseNumber(baseline)
	if !ok {
		return NA
	}
	return DeltaOf(a - b)
}

// Float returns the numeric delta and whether it is available.
func (d Delta) Float() (float64, bool) {
	return d.value, d.available
}

func (d Delta) IsNA() bool { return !d.available }

func (d Delta) String() string {
	if !d.available {
		return NotAvailable
	}
	return strconv.FormatFloat(d.value, 'f', -1, 64)
}

func (d Delta) MarshalJSON() ([]byte, error) {
	if !d.available {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(d.value)
}

func (d *Delta) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = NA
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*d = DeltaOf(f)
	return nil
}

func parseNumber(v Value) (float64, bool) {
	if !v.Present() {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		// drop the sign of -0
		return 0
	}
	return r
}
