package diagnosis

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/contractsplitter/internal/detector"
)

var names = []string{"Contrato", "Guia de Peligros", "Auditoria"}

func result(pages int, ranges map[string]*detector.PageRange) *detector.Result {
	res := &detector.Result{Family: detector.FamilyRenewal, TotalPages: pages}
	for _, n := range names {
		res.Sections = append(res.Sections, detector.Section{Name: n, Range: ranges[n]})
	}
	return res
}

func TestRoundTripPreservesRange(t *testing.T) {
	agg := NewAggregator(names)
	res := result(10, map[string]*detector.PageRange{"Guia de Peligros": {Start: 2, End: 6}})
	res.ContractDate = "11.2025"
	res.DateSource = detector.DateFromContract
	agg.Add("a.pdf", res)

	path := filepath.Join(t.TempDir(), FileName)
	if err := WriteFile(path, agg.Handoff()); err != nil {
		t.Fatal(err)
	}
	h, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	e := h["a.pdf"]
	if e == nil {
		t.Fatal("entry a.pdf missing after reload")
	}
	r, ok := e.Sections.Get("Guia de Peligros")
	if !ok || r == nil || r.Start != 3 || r.End != 7 {
		t.Fatalf("range = %+v, want [3,7]", r)
	}
	if e.ContractDate != "11.2025" || e.DateSource != detector.DateFromContract {
		t.Errorf("date = %q/%q", e.ContractDate, e.DateSource)
	}
	if r, ok := e.Sections.Get("Contrato"); !ok || r != nil {
		t.Errorf("Contrato = %+v, %v; want listed and null", r, ok)
	}
}

func TestEncodeKeepsSectionOrder(t *testing.T) {
	agg := NewAggregator([]string{"Zeta", "Alfa", "Medio"})
	agg.Add("x.pdf", &detector.Result{TotalPages: 1, Sections: []detector.Section{{Name: "Alfa", Range: &detector.PageRange{}}}})
	var buf bytes.Buffer
	if err := Encode(&buf, agg.Handoff()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	z, a, m := strings.Index(out, `"Zeta"`), strings.Index(out, `"Alfa"`), strings.Index(out, `"Medio"`)
	if z < 0 || !(z < a && a < m) {
		t.Errorf("section order not preserved:\n%s", out)
	}
	if !strings.Contains(out, `"fecha_contrato": "No detectada"`) {
		t.Errorf("missing date placeholder:\n%s", out)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"empty object", `{}`},
		{"missing secciones", `{"a.pdf": {"total_paginas": 3, "fecha_contrato": null}}`},
		{"missing fin", `{"a.pdf": {"total_paginas": 3, "fecha_contrato": null, "secciones": {"Contrato": {"inicio": 1}}}}`},
		{"zero page", `{"a.pdf": {"total_paginas": 3, "fecha_contrato": null, "secciones": {"Contrato": {"inicio": 0, "fin": 1}}}}`},
		{"start after end", `{"a.pdf": {"total_paginas": 3, "fecha_contrato": null, "secciones": {"Contrato": {"inicio": 3, "fin": 2}}}}`},
		{"string page", `{"a.pdf": {"total_paginas": 3, "fecha_contrato": null, "secciones": {"Contrato": {"inicio": "1", "fin": 2}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			if !errors.Is(err, ErrMalformedHandoff) {
				t.Errorf("err = %v, want ErrMalformedHandoff", err)
			}
		})
	}
}

func TestDecodeNullDate(t *testing.T) {
	doc := `{"a.pdf": {"total_paginas": 2, "fecha_contrato": null, "secciones": {"Contrato": {"inicio": 1, "fin": 2}, "Auditoria": null}}}`
	h, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	e := h["a.pdf"]
	if e.ContractDate != NoDate || e.Dated() {
		t.Errorf("ContractDate = %q, want %q", e.ContractDate, NoDate)
	}
	if len(e.Sections) != 2 || e.Sections[0].Name != "Contrato" || e.Sections.Detected() != 1 {
		t.Errorf("sections = %+v", e.Sections)
	}
}

func TestAddFailure(t *testing.T) {
	agg := NewAggregator(names)
	agg.AddFailure("broken.pdf", errors.New("unreadable"))
	e := agg.Handoff()["broken.pdf"]
	if !e.Failed() || e.Error != "unreadable" {
		t.Fatalf("entry = %+v", e)
	}
	if len(e.Sections) != len(names) || e.Sections.Detected() != 0 {
		t.Errorf("sections = %+v, want all null", e.Sections)
	}
}

func TestAddFallsBackToMaxEnd(t *testing.T) {
	agg := NewAggregator(names)
	agg.Add("a.pdf", result(0, map[string]*detector.PageRange{"Auditoria": {Start: 4, End: 5}}))
	if got := agg.Handoff()["a.pdf"].TotalPages; got != 6 {
		t.Errorf("TotalPages = %d, want 6", got)
	}
}

func TestMergeOtherWins(t *testing.T) {
	a := NewAggregator(names)
	a.AddFailure("x.pdf", errors.New("boom"))
	b := NewAggregator(names)
	b.Add("x.pdf", result(3, nil))
	b.Add("y.pdf", result(3, nil))
	a.Merge(b)
	if a.Len() != 2 || a.Handoff()["x.pdf"].Failed() {
		t.Errorf("merge result = %+v", a.Handoff())
	}
}

func testHandoff() Handoff {
	agg := NewAggregator(names)
	full := result(6, map[string]*detector.PageRange{
		"Contrato":         {Start: 0, End: 1},
		"Guia de Peligros": {Start: 2, End: 3},
		"Auditoria":        {Start: 4, End: 5},
	})
	full.ContractDate = "03.2025"
	full.DateSource = detector.DateFromContract
	agg.Add("b.pdf", full)
	agg.Add("a.pdf", result(4, map[string]*detector.PageRange{"Contrato": {Start: 0, End: 3}}))
	agg.AddFailure("c.pdf", errors.New("unreadable"))
	return agg.Handoff()
}

func TestSummarize(t *testing.T) {
	s := Summarize(testHandoff(), DefaultThreshold(detector.FamilyRenewal))
	if s.Files != 3 || s.TotalPages != 10 {
		t.Errorf("files/pages = %d/%d, want 3/10", s.Files, s.TotalPages)
	}
	if s.Detected != 4 || s.Missing != 2 {
		t.Errorf("detected/missing = %d/%d, want 4/2", s.Detected, s.Missing)
	}
	if len(s.Failed) != 1 || s.Failed[0] != "c.pdf" {
		t.Errorf("Failed = %v", s.Failed)
	}
	if len(s.Undated) != 1 || s.Undated[0] != "a.pdf" {
		t.Errorf("Undated = %v", s.Undated)
	}
	if len(s.Incomplete) != 1 || s.Incomplete[0] != (FileCoverage{File: "a.pdf", Detected: 1, Expected: 3}) {
		t.Errorf("Incomplete = %+v", s.Incomplete)
	}
	if len(s.Sections) != 3 || s.Sections[0].Name != "Contrato" || s.Sections[0].Rate() != 1 {
		t.Errorf("Sections = %+v", s.Sections)
	}
	if got := s.Sections[2].Rate(); got != 0.5 {
		t.Errorf("Auditoria rate = %v, want 0.5", got)
	}
	if s.DatesFromTaxRecord != 0 {
		t.Errorf("DatesFromTaxRecord = %d, want 0", s.DatesFromTaxRecord)
	}
}

func TestDefaultThreshold(t *testing.T) {
	if DefaultThreshold(detector.FamilyContract) != 10 || DefaultThreshold(detector.FamilyRenewal) != 3 {
		t.Error("unexpected thresholds")
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, Summarize(testHandoff(), 3)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"REPORTE DE DIAGNÓSTICO",
		"Total de archivos procesados: 3",
		"Auditoria",
		"1/2 (50.0%)",
		"ARCHIVOS SIN FECHA DETECTADA:\n  - a.pdf",
		"  - a.pdf: 1/3 secciones",
		"ARCHIVOS CON ERRORES:\n  - c.pdf",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteXLSX(t *testing.T) {
	h := testHandoff()
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, h, Summarize(h, 3)); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue(summarySheet, "B1"); got != "3" {
		t.Errorf("Resumen!B1 = %q, want 3", got)
	}
	// Rows are sorted by file name; a.pdf is first.
	if got, _ := f.GetCellValue(filesSheet, "A2"); got != "a.pdf" {
		t.Errorf("Archivos!A2 = %q, want a.pdf", got)
	}
	if got, _ := f.GetCellValue(filesSheet, "G3"); got != "1-2" {
		t.Errorf("Archivos!G3 = %q, want 1-2", got)
	}
	if got, _ := f.GetCellValue(filesSheet, "F4"); got != "unreadable" {
		t.Errorf("Archivos!F4 = %q, want unreadable", got)
	}
}
