package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleHandoff = `{
  "a.pdf": {
    "total_paginas": 6,
    "fecha_contrato": "03.2025",
    "fecha_origen": "contrato",
    "secciones": {"Contrato": {"inicio": 1, "fin": 2}, "Guia de Peligros": {"inicio": 3, "fin": 4}, "Auditoria": null}
  }
}`

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"split"}},
		{"diagnose without dir", []string{"diagnose"}},
		{"bad family", []string{"diagnose", "-dir", ".", "-family", "facturas"}},
		{"report without handoff", []string{"report"}},
		{"unknown flag", []string{"extract", "-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runCLI(t, tt.args...); code != exitUsage {
				t.Errorf("exit code = %d, want %d", code, exitUsage)
			}
		})
	}
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "h.json")
	if err := os.WriteFile(path, []byte(sampleHandoff), 0o644); err != nil {
		t.Fatal(err)
	}
	xlsx := filepath.Join(dir, "r.xlsx")
	code, out, errOut := runCLI(t, "report", "-handoff", path, "-family", "renovaciones", "-xlsx", xlsx)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	if !strings.Contains(out, "REPORTE DE DIAGNÓSTICO") || !strings.Contains(out, "a.pdf: 2/3 secciones") {
		t.Errorf("unexpected report:\n%s", out)
	}
	if _, err := os.Stat(xlsx); err != nil {
		t.Errorf("xlsx not written: %v", err)
	}
}

func TestExtractRejectsMalformedHandoff(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "diagnostico_rangos.json"), []byte(`{"a.pdf": {"secciones": {}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runCLI(t, "extract", "-dir", dir)
	if code != exitError {
		t.Fatalf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(errOut, "malformed") {
		t.Errorf("stderr = %q", errOut)
	}
	if _, err := os.Stat(filepath.Join(dir, "pdfs_extraidos")); !os.IsNotExist(err) {
		t.Errorf("output folder created before the hand-off was validated")
	}
}

func TestDiagnoseEmptyFolder(t *testing.T) {
	if code, _, _ := runCLI(t, "diagnose", "-dir", t.TempDir()); code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
}
