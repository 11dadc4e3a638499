package evolution

import (
	"errors"
	"testing"
)

func TestBuildReport_Scenarios(t *testing.T) {
	tax := Taxonomy{Groups: []Group{
		Flat("Cualidades Físicas", "Realiza levantamiento de pelota de 1.5 kg"),
		Flat("Equilibrio", "Se sostiene en balancin en un solo pie."),
	}}
	recent := rec("123", "Luis", "2024-03-05", map[string]Value{
		"Realiza levantamiento de pelota de 1.5 kg": Text("1"),
		"Se sostiene en balancin en un solo pie.":   Text("Sí"),
	})
	baseline := rec("123", "Luis", "2024-01-10", map[string]Value{
		"Realiza levantamiento de pelota de 1.5 kg": Text("0"),
		"Se sostiene en balancin en un solo pie.":   Text("No"),
	})

	report, err := BuildReport(&recent, &baseline, tax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(report.Sections))
	}

	lift := report.Sections[0].Rows[0]
	if v, ok := lift.Delta.Float(); !ok || v != 1.0 {
		t.Errorf("expected delta 1.0, got %s", lift.Delta)
	}

	balance := report.Sections[1].Rows[0]
	if !balance.Delta.IsNA() {
		t.Errorf("expected NA delta, got %s", balance.Delta)
	}
	if balance.Recent.Raw() != "Sí" || balance.Baseline.Raw() != "No" {
		t.Errorf("raw values not preserved: %q / %q", balance.Recent.Raw(), balance.Baseline.Raw())
	}
	if report.Sections[1].Group != "Equilibrio" || report.Sections[1].Subgroup != "" {
		t.Errorf("unexpected section %+v", report.Sections[1])
	}
	if report.PatientID != "123" || report.RecentDate.Format(DateLayout) != "2024-03-05" ||
		report.BaselineDate.Format(DateLayout) != "2024-01-10" {
		t.Errorf("unexpected report header %+v", report)
	}
}

func TestBuildReport_RowCountMatchesTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy()
	recent := rec("1", "Luis", "2024-03-05", nil)
	baseline := rec("1", "Luis", "2024-01-10", nil)

	report, err := BuildReport(&recent, &baseline, tax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RowCount() != tax.AttributeCount() {
		t.Errorf("expected %d rows, got %d", tax.AttributeCount(), report.RowCount())
	}
	// 3 flat groups + 3 subgroups
	if len(report.Sections) != 6 {
		t.Errorf("expected 6 sections, got %d", len(report.Sections))
	}
}

func TestBuildReport_PreservesDeclarationOrder(t *testing.T) {
	tax := Taxonomy{Groups: []Group{
		Flat("Zeta", "z2", "z1"),
		Nested("Alfa", Sub("Sub B", "b1"), Sub("Sub A", "a2", "a1")),
		Flat("Beta", "m"),
	}}
	recent := rec("1", "Luis", "2024-03-05", nil)
	baseline := rec("1", "Luis", "2024-01-10", nil)

	report, err := BuildReport(&recent, &baseline, tax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var attrs []string
	var titles []string
	for _, s := range report.Sections {
		titles = append(titles, s.Title())
		for _, r := range s.Rows {
			attrs = append(attrs, r.Attribute)
		}
	}
	want := tax.Attributes()
	if len(attrs) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(attrs))
	}
	for i := range want {
		if attrs[i] != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], attrs[i])
		}
	}
	wantTitles := []string{"Zeta", "Alfa / Sub B", "Alfa / Sub A", "Beta"}
	for i := range wantTitles {
		if titles[i] != wantTitles[i] {
			t.Errorf("section %d: expected %s, got %s", i, wantTitles[i], titles[i])
		}
	}
}

func TestBuildReport_MissingColumnsAreNA(t *testing.T) {
	tax := Taxonomy{Groups: []Group{Flat("G", "present", "absent")}}
	recent := rec("1", "Luis", "2024-03-05", map[string]Value{"present": Text("2")})
	baseline := rec("1", "Luis", "2024-01-10", map[string]Value{"present": Text("1"), "absent": Text("1")})

	report, err := BuildReport(&recent, &baseline, tax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := report.Sections[0].Rows
	if v, _ := rows[0].Delta.Float(); v != 1 {
		t.Errorf("expected 1, got %s", rows[0].Delta)
	}
	if rows[1].Recent.Raw() != NotAvailable || !rows[1].Delta.IsNA() {
		t.Errorf("expected NA for missing column, got %q / %s", rows[1].Recent.Raw(), rows[1].Delta)
	}
}

func TestBuildReport_MalformedTaxonomyFailsWhole(t *testing.T) {
	tax := Taxonomy{Groups: []Group{
		Flat("Ok", "a"),
		{Name: "Broken", Attributes: []string{"b"}},
	}}
	recent := rec("1", "Luis", "2024-03-05", nil)
	baseline := rec("1", "Luis", "2024-01-10", nil)

	report, err := BuildReport(&recent, &baseline, tax)
	if !errors.Is(err, ErrMalformedTaxonomy) {
		t.Fatalf("expected ErrMalformedTaxonomy, got %v", err)
	}
	if report != nil {
		t.Error("expected no partial report")
	}
}

func TestBuildReport_NilRecord(t *testing.T) {
	recent := rec("1", "Luis", "2024-03-05", nil)
	if _, err := BuildReport(&recent, nil, DefaultTaxonomy()); err == nil {
		t.Error("expected error for nil baseline")
	}
}

func TestComparisonReport_Summary(t *testing.T) {
	tax := Taxonomy{Groups: []Group{Flat("G", "up", "down", "same", "text")}}
	recent := rec("1", "Luis", "2024-03-05", map[string]Value{
		"up": Text("2"), "down": Text("0"), "same": Text("1"), "text": Text("Sí"),
	})
	baseline := rec("1", "Luis", "2024-01-10", map[string]Value{
		"up": Text("1"), "down": Text("1"), "same": Text("1"), "text": Text("No"),
	})
	report, err := BuildReport(&recent, &baseline, tax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := report.Summary()
	if sum != (Summary{Improved: 1, Regressed: 1, Unchanged: 1, NotComparable: 1}) {
		t.Errorf("unexpected summary %+v", sum)
	}
}
