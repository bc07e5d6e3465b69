package detector

import (
	"strings"
	"testing"

	"github.com/Lllllllleong/contractsplitter/internal/patterns"
)

func TestIsNearEmptyPage(t *testing.T) {
	spec := patterns.MustDefault().Contract.Beneficiary
	signatureSheet := strings.Repeat("FIRMA DEL TRABAJADOR ____________ HUELLA DIGITAL DNI 12345678 Fecha: 12/03/2025\n", 3)
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"whitespace", " \n\t ", true},
		{"forty chars", strings.Repeat("a", 40), true},
		{"at threshold", strings.Repeat("a", spec.MaxChars), true},
		{"one over threshold", strings.Repeat("a", spec.MaxChars+1), false},
		{"signature sheet", signatureSheet, true},
		{"prose", strings.Repeat("el trabajador declara ", 10), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNearEmptyPage(tt.text, spec); got != tt.want {
				t.Errorf("IsNearEmptyPage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsExcludedContent(t *testing.T) {
	spec := patterns.MustDefault().Contract.Beneficiary
	if !IsExcludedContent("... REGLAMENTO interno ...", spec) {
		t.Error("reglamento should be excluded")
	}
	if !IsExcludedContent("Política de Comportamiento", spec) {
		t.Error("política should be excluded")
	}
	if IsExcludedContent("Firma Juan Perez", spec) {
		t.Error("signature text should not be excluded")
	}
}
