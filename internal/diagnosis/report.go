package diagnosis

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// WriteText renders the plain-text operator report.
func WriteText(w io.Writer, s Summary) error {
	bw := bufio.NewWriter(w)
	rule := strings.Repeat("=", 80)

	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, "REPORTE DE DIAGNÓSTICO")
	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Total de archivos procesados: %d\n", s.Files)
	fmt.Fprintf(bw, "Total de páginas: %d\n", s.TotalPages)
	fmt.Fprintf(bw, "Secciones detectadas: %d\n", s.Detected)
	fmt.Fprintf(bw, "Secciones faltantes: %d\n", s.Missing)
	fmt.Fprintf(bw, "Fechas extraídas de SUNAT: %d/%d\n", s.DatesFromTaxRecord, s.Files)
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "DETECCIÓN POR SECCIÓN:")
	fmt.Fprintln(bw, strings.Repeat("-", 80))
	for _, st := range s.Sections {
		fmt.Fprintf(bw, "  %-60s %d/%d (%.1f%%)\n", st.Name, st.Detected, st.Detected+st.Missing, st.Rate()*100)
	}
	fmt.Fprintln(bw)

	if len(s.Undated) > 0 {
		fmt.Fprintln(bw, "ARCHIVOS SIN FECHA DETECTADA:")
		for _, f := range s.Undated {
			fmt.Fprintf(bw, "  - %s\n", f)
		}
		fmt.Fprintln(bw)
	}
	if len(s.Incomplete) > 0 {
		fmt.Fprintf(bw, "ARCHIVOS INCOMPLETOS (<%d secciones):\n", s.Threshold)
		for _, c := range s.Incomplete {
			fmt.Fprintf(bw, "  - %s: %d/%d secciones\n", c.File, c.Detected, c.Expected)
		}
		fmt.Fprintln(bw)
	}
	if len(s.Failed) > 0 {
		fmt.Fprintln(bw, "ARCHIVOS CON ERRORES:")
		for _, f := range s.Failed {
			fmt.Fprintf(bw, "  - %s\n", f)
		}
		fmt.Fprintln(bw)
	}
	fmt.Fprintln(bw, rule)
	return bw.Flush()
}

const (
	summarySheet = "Resumen"
	filesSheet   = "Archivos"
)

// WriteXLSX renders a workbook with a summary sheet and one row per file.
func WriteXLSX(w io.Writer, h Handoff, s Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("xlsx rename sheet: %w", err)
	}
	if _, err := f.NewSheet(filesSheet); err != nil {
		return fmt.Errorf("xlsx new sheet: %w", err)
	}

	row := 1
	put := func(sheet string, col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for _, kv := range []struct {
		label string
		value any
	}{
		{"Archivos procesados", s.Files},
		{"Páginas", s.TotalPages},
		{"Secciones detectadas", s.Detected},
		{"Secciones faltantes", s.Missing},
		{"Fechas desde SUNAT", s.DatesFromTaxRecord},
		{"Archivos sin fecha", len(s.Undated)},
		{"Archivos incompletos", len(s.Incomplete)},
		{"Archivos con errores", len(s.Failed)},
	} {
		put(summarySheet, 1, kv.label)
		put(summarySheet, 2, kv.value)
		row++
	}
	row++
	for i, hdr := range []string{"Sección", "Detectadas", "Faltantes", "Porcentaje"} {
		put(summarySheet, i+1, hdr)
	}
	row++
	for _, st := range s.Sections {
		put(summarySheet, 1, st.Name)
		put(summarySheet, 2, st.Detected)
		put(summarySheet, 3, st.Missing)
		put(summarySheet, 4, fmt.Sprintf("%.1f%%", st.Rate()*100))
		row++
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 60)
	_ = f.SetColWidth(summarySheet, "B", "D", 14)

	var sectionNames []string
	for _, st := range s.Sections {
		sectionNames = append(sectionNames, st.Name)
	}
	headers := append([]string{"Archivo", "Páginas", "Fecha", "Origen fecha", "Detectadas", "Error"}, sectionNames...)
	row = 1
	for i, hdr := range headers {
		put(filesSheet, i+1, hdr)
	}
	files := make([]string, 0, len(h))
	for name := range h {
		files = append(files, name)
	}
	sort.Strings(files)
	for _, name := range files {
		row++
		e := h[name]
		put(filesSheet, 1, name)
		put(filesSheet, 2, e.TotalPages)
		put(filesSheet, 3, e.ContractDate)
		put(filesSheet, 4, e.DateSource)
		put(filesSheet, 5, e.Sections.Detected())
		put(filesSheet, 6, e.Error)
		for i, sec := range sectionNames {
			if r, _ := e.Sections.Get(sec); r != nil {
				put(filesSheet, 7+i, fmt.Sprintf("%d-%d", r.Start, r.End))
			}
		}
	}
	_ = f.SetColWidth(filesSheet, "A", "A", 48)
	_ = f.SetColWidth(filesSheet, "B", "F", 14)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
