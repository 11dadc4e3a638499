package evolution

import (
	"encoding/json"
	"testing"
)

func TestComputeDelta_Numeric(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"1", "0", 1},
		{"0", "1", -1},
		{"3.5", "1.25", 2.25},
		{" 2 ", "2", 0},
		{"0.125", "0", 0.13},
		{"0", "0.125", -0.13},
		{"10", "2.333", 7.67},
		{"-1.5", "1.5", -3},
	}
	for _, tc := range cases {
		d := ComputeDelta(Text(tc.a), Text(tc.b))
		got, ok := d.Float()
		if !ok {
			t.Errorf("ComputeDelta(%q, %q) = NA, want %v", tc.a, tc.b, tc.want)
			continue
		}
		if got != tc.want {
			t.Errorf("ComputeDelta(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestComputeDelta_SameValueIsZero(t *testing.T) {
	for _, v := range []string{"0", "1", "2.5", "-7.25", "1e3", "0.333"} {
		got, ok := ComputeDelta(Text(v), Text(v)).Float()
		if !ok || got != 0 {
			t.Errorf("ComputeDelta(%q, %q) = %v (ok=%v), want 0", v, v, got, ok)
		}
	}
}

func TestComputeDelta_Antisymmetric(t *testing.T) {
	values := []string{"0", "1", "2.5", "-3.125", "0.005", "100", "1.115"}
	for _, a := range values {
		for _, b := range values {
			ab, _ := ComputeDelta(Text(a), Text(b)).Float()
			ba, _ := ComputeDelta(Text(b), Text(a)).Float()
			if ab != -ba {
				t.Errorf("delta(%s,%s)=%v but delta(%s,%s)=%v", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestComputeDelta_NotAvailable(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
	}{
		{"text both", Text("Sí"), Text("No")},
		{"text recent", Text("Sí"), Text("1")},
		{"text baseline", Text("1"), Text("No")},
		{"empty", Text(""), Text("1")},
		{"blank", Text("  "), Text("1")},
		{"missing recent", Missing(), Text("1")},
		{"missing baseline", Text("1"), Missing()},
		{"missing both", Missing(), Missing()},
		{"nan", Text("NaN"), Text("1")},
		{"inf", Text("1"), Text("Inf")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ComputeDelta(tc.a, tc.b)
			if !d.IsNA() {
				t.Errorf("expected NA, got %s", d)
			}
			if d.String() != NotAvailable {
				t.Errorf("expected %q, got %q", NotAvailable, d.String())
			}
		})
	}
}

func TestComputeDelta_Numbers(t *testing.T) {
	got, ok := ComputeDelta(Number(3), Text("1.5")).Float()
	if !ok || got != 1.5 {
		t.Errorf("expected 1.5, got %v (ok=%v)", got, ok)
	}
}

func TestDelta_NoNegativeZero(t *testing.T) {
	d := ComputeDelta(Text("0.001"), Text("0.003"))
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "0" {
		t.Errorf("expected 0, got %s", b)
	}
}

func TestDelta_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Delta `json:"a"`
		B Delta `json:"b"`
	}{A: DeltaOf(1), B: NA})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":1,"b":"NA"}` {
		t.Errorf("unexpected json %s", b)
	}

	var d Delta
	if err := json.Unmarshal([]byte(`"NA"`), &d); err != nil || !d.IsNA() {
		t.Errorf("expected NA from json, got %v (err=%v)", d, err)
	}
	if err := json.Unmarshal([]byte(`-2.5`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := d.Float(); !ok || v != -2.5 {
		t.Errorf("expected -2.5, got %v", v)
	}
}
