package services

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Lllllllleong/contractsplitter/internal/diagnosis"
)

func TestSourceObjects(t *testing.T) {
	h := diagnosis.Handoff{
		"b.pdf": {TotalPages: 3},
		"a.pdf": {TotalPages: 5},
		"c.pdf": {Error: "unreadable"},
	}
	got := sourceObjects("2025-11/contratos/", h)
	want := []sourceObject{
		{File: "a.pdf", Object: "2025-11/contratos/a.pdf"},
		{File: "b.pdf", Object: "2025-11/contratos/b.pdf"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sourceObjects = %v, want %v", got, want)
	}
}

func TestUploadPlan(t *testing.T) {
	outDir := filepath.Join("tmp", "pdfs_extraidos")
	outputs := []string{
		filepath.Join(outDir, "PEREZ JUAN", "Contrato de Trabajo-03.2025-PEREZ JUAN.pdf"),
		filepath.Join(outDir, "RENOVACION ARENAS", "Contrato-No detectada-Anthony Arenas.pdf"),
	}
	got, err := uploadPlan(outDir, "batch-1/", outputs)
	if err != nil {
		t.Fatal(err)
	}
	want := []upload{
		{Local: outputs[0], Object: "batch-1/PEREZ JUAN/Contrato de Trabajo-03.2025-PEREZ JUAN.pdf"},
		{Local: outputs[1], Object: "batch-1/RENOVACION ARENAS/Contrato-No detectada-Anthony Arenas.pdf"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("uploadPlan = %v, want %v", got, want)
	}

	if _, err := uploadPlan(outDir, "batch-1/", []string{filepath.Join("tmp", "other", "x.pdf")}); err == nil {
		t.Error("output outside the output folder was accepted")
	}
	if plan, err := uploadPlan(outDir, "batch-1/", nil); err != nil || len(plan) != 0 {
		t.Errorf("empty outputs: plan %v, err %v", plan, err)
	}
}
