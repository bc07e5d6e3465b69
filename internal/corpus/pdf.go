package corpus

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"
	utf16 "golang.org/x/text/encoding/unicode"
)

// PDFExtractor reads page text with ledongthuc/pdf, which decodes font
// encodings and ToUnicode maps. Pages it cannot read, and whole files it
// rejects, fall back to scanning the raw content streams through pdfcpu.
type PDFExtractor struct {
	// Relaxed validation tolerates the slightly broken files scanners produce.
	Relaxed bool
}

// NewPDFExtractor returns an extractor using relaxed validation.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{Relaxed: true}
}

// Extract opens path and returns one corpus page per PDF page. Pages without
// a text layer yield an empty string.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (*Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	streams := &streamReader{rs: f, conf: e.configuration()}
	r, err := openReader(f, info.Size())
	if err != nil {
		pdfCtx, err := streams.context()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrUnreadable, path, err)
		}
		pages := make([]string, pdfCtx.PageCount)
		for i := range pages {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pages[i] = pageText(pdfCtx, i+1)
		}
		return New(pages), nil
	}

	pages := make([]string, r.NumPage())
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := glyphText(r.Page(i + 1))
		if err != nil || text == "" {
			text = streams.page(i + 1)
		}
		pages[i] = text
	}
	return New(pages), nil
}

func (e *PDFExtractor) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if e.Relaxed {
		conf.ValidationMode = model.ValidationRelaxed
	}
	return conf
}

func openReader(f io.ReaderAt, size int64) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("pdf reader: %v", p)
		}
	}()
	return pdf.NewReader(f, size)
}

// glyphText lays out the positioned glyphs of one page. The reader panics on
// malformed content, which is reported as an error.
func glyphText(p pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page content: %v", r)
		}
	}()
	if p.V.IsNull() {
		return "", nil
	}
	return layoutText(p.Content().Text), nil
}

// layoutText rebuilds reading order from positioned glyphs: rows top to bottom,
// glyphs left to right, and a space wherever the horizontal gap is wider than
// a fifth of the font size.
func layoutText(glyphs []pdf.Text) string {
	if len(glyphs) == 0 {
		return ""
	}
	gs := make([]pdf.Text, len(glyphs))
	copy(gs, glyphs)
	sort.SliceStable(gs, func(i, j int) bool { return gs[i].Y > gs[j].Y })

	var rows [][]pdf.Text
	for _, g := range gs {
		if n := len(rows); n > 0 {
			first := rows[n-1][0]
			if math.Abs(first.Y-g.Y) <= rowTolerance(first) {
				rows[n-1] = append(rows[n-1], g)
				continue
			}
		}
		rows = append(rows, []pdf.Text{g})
	}

	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sort.SliceStable(row, func(a, b int) bool { return row[a].X < row[b].X })
		for k, g := range row {
			if k > 0 {
				prev := row[k-1]
				if g.X-(prev.X+prev.W) > fontSize(prev)/5 {
					sb.WriteByte(' ')
				}
			}
			sb.WriteString(g.S)
		}
	}
	return cleanText(sb.String())
}

func fontSize(g pdf.Text) float64 {
	if s := math.Abs(g.FontSize); s > 0 {
		return s
	}
	return 1
}

func rowTolerance(g pdf.Text) float64 {
	return math.Max(fontSize(g)/2, 1)
}

// streamReader loads the pdfcpu context on first use.
type streamReader struct {
	rs     io.ReadSeeker
	conf   *model.Configuration
	pdfCtx *model.Context
	err    error
	loaded bool
}

func (s *streamReader) context() (*model.Context, error) {
	if !s.loaded {
		s.loaded = true
		if _, err := s.rs.Seek(0, io.SeekStart); err != nil {
			s.err = err
		} else {
			s.pdfCtx, s.err = api.ReadValidateAndOptimize(s.rs, s.conf)
		}
	}
	return s.pdfCtx, s.err
}

func (s *streamReader) page(pageNr int) string {
	pdfCtx, err := s.context()
	if err != nil || pageNr > pdfCtx.PageCount {
		return ""
	}
	return pageText(pdfCtx, pageNr)
}

func pageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromStream(data)
}

type operandKind int

const (
	operandString operandKind = iota
	operandNumber
	operandOther
)

type operand struct {
	kind operandKind
	text string
	num  float64
}

// textFromStream tokenizes a content stream and collects the strings shown by
// Tj, TJ, ' and ". Positioning operators become whitespace so words placed
// apart stay apart. In TJ arrays a kerning offset of -200 or less is a space.
func textFromStream(data []byte) string {
	var sb strings.Builder
	var operands []operand
	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			raw, next := literalString(data, i)
			operands = append(operands, operand{kind: operandString, text: decodePDFString(raw)})
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<', c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			end := bytes.IndexByte(data[i:], '>')
			if end < 0 {
				i = len(data)
				continue
			}
			operands = append(operands, operand{kind: operandString, text: decodeHexString(data[i+1 : i+end])})
			i += end + 1
		case c == '/':
			j := i + 1
			for j < len(data) && isRegular(data[j]) {
				j++
			}
			operands = append(operands, operand{kind: operandOther})
			i = j
		case !isRegular(c):
			i++
		default:
			j := i
			for j < len(data) && isRegular(data[j]) {
				j++
			}
			tok := string(data[i:j])
			i = j
			if n, err := strconv.ParseFloat(tok, 64); err == nil {
				operands = append(operands, operand{kind: operandNumber, num: n})
				continue
			}
			switch tok {
			case "Tj":
				showText(&sb, operands, false)
			case "TJ":
				showText(&sb, operands, true)
			case "'", `"`:
				sb.WriteByte('\n')
				showText(&sb, lastString(operands), false)
			case "Td", "TD", "Tm":
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
			case "T*", "ET":
				sb.WriteByte('\n')
			case "ID":
				i = skipInlineImage(data, i)
			}
			operands = operands[:0]
		}
	}
	return cleanText(sb.String())
}

func showText(sb *strings.Builder, operands []operand, kerning bool) {
	for _, o := range operands {
		switch {
		case o.kind == operandString:
			sb.WriteString(o.text)
		case kerning && o.kind == operandNumber && o.num <= -200:
			sb.WriteByte(' ')
		}
	}
}

func lastString(operands []operand) []operand {
	for i := len(operands) - 1; i >= 0; i-- {
		if operands[i].kind == operandString {
			return operands[i : i+1]
		}
	}
	return nil
}

// literalString returns the bytes between the parenthesis at data[start] and
// its balancing close, escapes left unresolved, and the index after the close.
func literalString(data []byte, start int) ([]byte, int) {
	depth := 0
	for j := start; j < len(data); j++ {
		switch data[j] {
		case '\\':
			j++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return data[start+1 : j], j + 1
			}
		}
	}
	return data[start+1:], len(data)
}

// skipInlineImage moves past the binary data of an inline image, which runs
// from after ID to an EI token.
func skipInlineImage(data []byte, i int) int {
	for j := i + 1; j+1 < len(data); j++ {
		if data[j] == 'E' && data[j+1] == 'I' && isPDFSpace(data[j-1]) && (j+2 == len(data) || !isRegular(data[j+2])) {
			return j + 2
		}
	}
	return len(data)
}

func isPDFSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isRegular(c byte) bool {
	if isPDFSpace(c) {
		return false
	}
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

// decodeHexString decodes a <...> string. Text with a UTF-16 byte order mark
// is decoded as such; anything else goes through WinAnsi like literal strings.
// Identity-H glyph codes have no meaning without the font's ToUnicode map and
// come out as noise here.
func decodeHexString(raw []byte) string {
	digits := make([]byte, 0, len(raw)+1)
	for _, c := range raw {
		if !isPDFSpace(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	buf := make([]byte, hex.DecodedLen(len(digits)))
	if _, err := hex.Decode(buf, digits); err != nil {
		return ""
	}
	if bytes.HasPrefix(buf, []byte{0xFE, 0xFF}) {
		out, err := utf16.UTF16(utf16.BigEndian, utf16.ExpectBOM).NewDecoder().Bytes(buf)
		if err == nil {
			return string(out)
		}
	}
	return winAnsi(buf)
}

// decodePDFString resolves escapes and maps the bytes through WinAnsi, which
// is what the Spanish-language scans we receive use for accented letters.
func decodePDFString(raw []byte) string {
	buf := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			buf = append(buf, raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			buf = append(buf, '\n')
		case 'r':
			buf = append(buf, '\r')
		case 't':
			buf = append(buf, '\t')
		case '\\', '(', ')':
			buf = append(buf, c)
		case '\n':
			// Line continuation.
		default:
			if c < '0' || c > '7' {
				buf = append(buf, c)
				continue
			}
			val := int(c - '0')
			for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			buf = append(buf, byte(val))
		}
	}
	return winAnsi(buf)
}

func winAnsi(b []byte) string {
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// cleanText keeps line breaks but squeezes runs of blanks and drops control characters.
func cleanText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			sb.WriteRune(r)
			prevSpace = true
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
