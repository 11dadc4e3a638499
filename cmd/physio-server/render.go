package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/ehr/physio/internal/domain/evolution"
)

var funcs = template.FuncMap{
	"day": func(t time.Time) string { return t.Format(evolution.DateLayout) },
}

var comparisonTmpl = template.Must(template.New("comparison").Funcs(funcs).Parse(
	`{{with .Comparison}}Paciente: {{.PatientName}} - ID: {{.PatientID}}
{{if .Report}}Fecha Evolutiva: {{day .Report.RecentDate}}	Fecha Comparativa: {{day .Report.BaselineDate}}
{{range .Report.Sections}}
== {{.Title}} ==
{{$.Columns.Attribute}}	{{$.Columns.Recent}}	{{$.Columns.Baseline}}	{{$.Columns.Result}}
{{range .Rows}}{{.Attribute}}	{{.Recent}}	{{.Baseline}}	{{.Delta}}
{{end}}{{end}}{{with .Summary}}
Mejoras: {{.Improved}}	Retrocesos: {{.Regressed}}	Sin cambio: {{.Unchanged}}	NA: {{.NotComparable}}
{{end}}{{else}}Se requieren al menos dos evoluciones para comparar.
{{end}}{{end}}`))

var datesTmpl = template.Must(template.New("dates").Funcs(funcs).Parse(
	`Paciente: {{.PatientName}} - ID: {{.PatientID}}
{{range .Dates}}{{day .}}
{{end}}`))

var patientsTmpl = template.Must(template.New("patients").Parse(
	`{{range .}}{{.ID}}	{{.Name}}
{{end}}`))

var taxonomyTmpl = template.Must(template.New("taxonomy").Parse(
	`{{range .Groups}}{{.Name}}
{{range .Attributes}}  - {{.}}
{{end}}{{range .Subgroups}}  {{.Name}}
{{range .Attributes}}    - {{.}}
{{end}}{{end}}{{end}}`))

type columns struct {
	Attribute, Recent, Baseline, Result string
}

func reportColumns() columns {
	return columns{
		Attribute: evolution.ColumnAttribute,
		Recent:    evolution.ColumnRecent,
		Baseline:  evolution.ColumnBaseline,
		Result:    evolution.ColumnResult,
	}
}

// render writes v as indented JSON or through tmpl into an aligned table.
func render(w io.Writer, format string, tmpl *template.Template, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if err := tmpl.Execute(tw, v); err != nil {
			return fmt.Errorf("render %s: %w", tmpl.Name(), err)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderComparison(w io.Writer, format string, cmp *evolution.Comparison) error {
	if format == "json" {
		return render(w, format, nil, cmp)
	}
	return render(w, format, comparisonTmpl, struct {
		Comparison *evolution.Comparison
		Columns    columns
	}{cmp, reportColumns()})
}
