package corpus

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ledongthuc/pdf"
)

func TestNew(t *testing.T) {
	// "Guía" with a combining acute accent must compose to the precomposed form.
	c := New([]string{"  CONTRATO   DE\nTRABAJO  ", "", "Gui\u0301a de tipos"})
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if got := c.Text(0); got != "contrato de trabajo" {
		t.Errorf("Text(0) = %q", got)
	}
	if got := c.Stripped(0); got != len("CONTRATO   DE\nTRABAJO") {
		t.Errorf("Stripped(0) = %d", got)
	}
	if c.Text(1) != "" || c.Stripped(1) != 0 {
		t.Error("empty page should stay empty")
	}
	if got := c.Text(2); got != "guía de tipos" {
		t.Errorf("Text(2) = %q, want NFC form", got)
	}
	if !c.Valid(2) || c.Valid(3) || c.Valid(-1) {
		t.Error("Valid bounds wrong")
	}
}

func TestStrippedCountsRunes(t *testing.T) {
	c := New([]string{"ñañá"})
	if got := c.Stripped(0); got != 4 {
		t.Errorf("Stripped = %d, want 4", got)
	}
}

func TestPagesIsCopy(t *testing.T) {
	c := New([]string{"uno"})
	p := c.Pages()
	p[0] = "dos"
	if c.Raw(0) != "uno" {
		t.Error("Pages must not expose internal state")
	}
}

func TestTextFromStream(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{"one operator per line", "BT\n/F1 12 Tf\n72 712 Td\n(CONTRATO DE) Tj\n0 -14 Td\n[(TRA) -20 (BAJO)] TJ\nET\n", "CONTRATO DE TRABAJO"},
		{"whole text object on one line", "BT /F1 12 Tf 72 712 Td (CONTRATO DE TRABAJO) Tj ET", "CONTRATO DE TRABAJO"},
		{"carriage return line endings", "BT\r/F1 12 Tf\r72 712 Td\r(CONTRATO DE TRABAJO) Tj\rET\r", "CONTRATO DE TRABAJO"},
		{"hex string", "BT /F1 12 Tf <434F4E545241544F> Tj ET", "CONTRATO"},
		{"utf-16 hex string", "BT <FEFF0047007500ED0061> Tj ET", "Guía"},
		{"kerning gap is a space", "BT [(GU) 10 (IA) -250 (DE) -300 (PELIGROS)] TJ ET", "GUIA DE PELIGROS"},
		{"next-line operator", "BT (PRIMERA) Tj (SEGUNDA) ' ET", "PRIMERA\nSEGUNDA"},
		{"nested parentheses", "BT (Art. 5 \\(b\\) y (c)) Tj ET", "Art. 5 (b) y (c)"},
		{"dictionary and comment ignored", "% header\n/Span <</MCID 0>> BDC BT (RIT) Tj ET EMC", "RIT"},
		{"inline image skipped", "BI /W 2 /H 1 ID \x00\x29Tj\xff EI BT (FIN) Tj ET", "FIN"},
		{"no text", "q 1 0 0 1 0 0 cm /Im0 Do Q", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textFromStream([]byte(tt.stream)); got != tt.want {
				t.Errorf("textFromStream = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLayoutText(t *testing.T) {
	word := func(s string, x, y float64) []pdf.Text {
		var out []pdf.Text
		for i, r := range s {
			out = append(out, pdf.Text{FontSize: 10, X: x + float64(i)*6, Y: y, W: 6, S: string(r)})
		}
		return out
	}
	var glyphs []pdf.Text
	glyphs = append(glyphs, word("DOS", 72, 680)...)
	glyphs = append(glyphs, word("TRABAJO", 126, 700.4)...)
	glyphs = append(glyphs, word("CONTRATO", 72, 700)...)

	if got, want := layoutText(glyphs), "CONTRATO TRABAJO\nDOS"; got != want {
		t.Errorf("layoutText = %q, want %q", got, want)
	}
	if got := layoutText(nil); got != "" {
		t.Errorf("layoutText(nil) = %q", got)
	}
}

func TestDecodePDFString(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`Gu\355a`, "Guía"},
		{`a\(b\)`, "a(b)"},
		{`espa\361ol`, "español"},
		{`\101`, "A"},
	}
	for _, tt := range tests {
		if got := decodePDFString([]byte(tt.raw)); got != tt.want {
			t.Errorf("decodePDFString(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestExtractMissingFile(t *testing.T) {
	_, err := NewPDFExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "none.pdf"))
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("err = %v, want ErrUnreadable", err)
	}
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPDFExtractor().Extract(ctx, "x.pdf"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
