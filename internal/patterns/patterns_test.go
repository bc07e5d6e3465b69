package patterns

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		src   string
		text  string
		match bool
	}{
		{"Contrato de Trabajo", "contrato de trabajo a plazo fijo", true},
		{"contrato   de\ttrabajo", "contrato de trabajo", true},
		{"guía || guia", "guia de tipos", true},
		{"guía || guia", "manual", false},
		{"conste por el presente && reglamento interno", "conste por el presente ... reglamento interno", true},
		{"conste por el presente && reglamento interno", "conste por el presente", false},
		{"a && b || c", "only c here", true},
		{`re:\brit\b`, "escrito", false},
		{`re:\brit\b`, "recibí el rit 2025", true},
		{`re:PELIGROS`, "peligros", true},
	}
	for _, tt := range tests {
		p, err := ParsePattern(tt.src)
		if err != nil {
			t.Fatalf("ParsePattern(%q): %v", tt.src, err)
		}
		if got := p.Match(tt.text); got != tt.match {
			t.Errorf("%q.Match(%q) = %v, want %v", tt.src, tt.text, got, tt.match)
		}
	}
}

func TestParsePatternErrors(t *testing.T) {
	for _, src := range []string{"", "   ", "a || ", "re:(unclosed"} {
		if _, err := ParsePattern(src); err == nil {
			t.Errorf("ParsePattern(%q) expected error", src)
		}
	}
}

func TestRemove(t *testing.T) {
	p := MustPattern("firma || huella")
	got := strings.Join(strings.Fields(p.Remove("firma juan huella")), " ")
	if got != "juan" {
		t.Errorf("Remove = %q, want %q", got, "juan")
	}
	re := MustPattern(`re:\d{8}`)
	if got := strings.TrimSpace(re.Remove("12345678")); got != "" {
		t.Errorf("regex Remove = %q, want empty", got)
	}
}

func TestThresholdBoundary(t *testing.T) {
	spec := SectionSpec{
		Name:      "RISST 2025",
		Mode:      ModeThreshold,
		Threshold: 3,
		Patterns:  MustSet("uno", "dos", "tres", "cuatro"),
	}
	if spec.Matches("uno dos") {
		t.Error("N-1 markers must be rejected")
	}
	if !spec.Matches("uno dos tres") {
		t.Error("exactly N markers must be accepted")
	}
	if got := spec.Score("uno dos tres cuatro"); got != 4 {
		t.Errorf("Score = %d, want 4", got)
	}
}

func TestSectionSpecConfirm(t *testing.T) {
	lib := MustDefault()
	conduct := lib.Contract.ConductCode
	if conduct.Matches("constancia de entrega del reglamento") {
		t.Error("conduct code without confirming phrase must not match")
	}
	if !conduct.Matches("constancia de entrega del código de conducta") {
		t.Error("conduct code with confirming phrase must match")
	}
}

func TestSingleModeUsesFirstPattern(t *testing.T) {
	spec := SectionSpec{Name: "x", Mode: ModeSingle, Patterns: MustSet("alfa", "beta")}
	if spec.Matches("beta") {
		t.Error("single mode must only consult the first pattern")
	}
	if !spec.Matches("alfa") {
		t.Error("single mode should match its first pattern")
	}
}

func TestDefaultLibrary(t *testing.T) {
	lib, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if lib.Version == "" {
		t.Error("expected a version")
	}
	c := lib.Contract
	if c.HazardGuide.MinValidation != 2 || c.HazardGuide.MinContinuation != 3 {
		t.Errorf("hazard thresholds = %d/%d", c.HazardGuide.MinValidation, c.HazardGuide.MinContinuation)
	}
	if c.CombinedAck.Threshold != 3 || c.SafetyRegulations.Threshold != 2 || c.Chinalco.Threshold != 2 {
		t.Error("unexpected section thresholds")
	}
	if len(c.TaxDates) != 3 {
		t.Errorf("tax date patterns = %d, want 3", len(c.TaxDates))
	}
	// Aliased sets must decode to the same patterns.
	if len(lib.Renewal.HazardGuide.Validation) != len(c.HazardGuide.Validation) {
		t.Error("renewal hazard validation should share the contract set")
	}
	if !lib.Renewal.HazardGuide.Pagination.Valid() {
		t.Error("pagination expression missing")
	}
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	override := `
version: "test"
contract:
  beneficiary:
    max_chars: 50
  audit:
    patterns:
      - 'acta de cierre'
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	lib, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lib.Version != "test" {
		t.Errorf("version = %q", lib.Version)
	}
	if lib.Contract.Beneficiary.MaxChars != 50 {
		t.Errorf("max_chars = %d, want 50", lib.Contract.Beneficiary.MaxChars)
	}
	if lib.Contract.Beneficiary.Name != "Constancia de Alta DerechoHabiente" {
		t.Errorf("absent keys must keep defaults, got name %q", lib.Contract.Beneficiary.Name)
	}
	if len(lib.Contract.Audit.Patterns) != 1 || !lib.Contract.Audit.Matches("acta de cierre") {
		t.Error("override sequence should replace the default audit patterns")
	}
	if lib.Contract.Audit.Name != "Contrato Auditoria" {
		t.Errorf("audit name = %q", lib.Contract.Audit.Name)
	}

	// The embedded default must be untouched by an override.
	def := MustDefault()
	if def.Contract.Beneficiary.MaxChars != 100 {
		t.Errorf("default max_chars changed to %d", def.Contract.Beneficiary.MaxChars)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad regex":      "contract:\n  tax_dates:\n    - '(?P<day>\\d+'\n",
		"missing groups": "contract:\n  contract_dates:\n    - '\\d{4}'\n",
		"threshold":      "contract:\n  chinalco:\n    threshold: 9\n",
		"mode":           "contract:\n  audit:\n    mode: sometimes\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Override([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadEmptyPath(t *testing.T) {
	lib, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if lib.Contract.Contract.Name != "Contrato de Trabajo" {
		t.Errorf("contract name = %q", lib.Contract.Contract.Name)
	}
}
