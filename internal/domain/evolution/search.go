package evolution

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowercases s and strips diacritics so "José" matches "jose".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// FilterPatients keeps the entries whose label contains query, ignoring case
// and accents. An empty query keeps everything.
func FilterPatients(patients []PatientSummary, query string) []PatientSummary {
	q := fold(query)
	if q == "" {
		return patients
	}
	out := make([]PatientSummary, 0, len(patients))
	for _, p := range patients {
		if strings.Contains(fold(p.Label), q) {
			out = append(out, p)
		}
	}
	return out
}
