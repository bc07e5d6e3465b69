// Package extract runs the extraction pass: it copies every detected section
// of a diagnosed batch into its own PDF, named after the section, the contract
// date and the worker.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/contractsplitter/internal/diagnosis"
)

// ErrStartOutOfRange reports a section that begins after the document's last page.
var ErrStartOutOfRange = errors.New("section starts beyond the end of the document")

// RangeExtractor copies an inclusive 1-based page range of src into dst and
// returns the range actually written.
type RangeExtractor interface {
	ExtractRange(ctx context.Context, src string, rng diagnosis.Range, dst string) (diagnosis.Range, error)
}

// PDFSplitter extracts page ranges with pdfcpu.
type PDFSplitter struct {
	conf *model.Configuration
}

// NewPDFSplitter returns a splitter that tolerates the minor structural
// defects common in scanned documents.
func NewPDFSplitter() *PDFSplitter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFSplitter{conf: conf}
}

// ExtractRange clamps the end of rng to the document length. A start beyond
// the document is ErrStartOutOfRange.
func (s *PDFSplitter) ExtractRange(ctx context.Context, src string, rng diagnosis.Range, dst string) (diagnosis.Range, error) {
	if err := ctx.Err(); err != nil {
		return diagnosis.Range{}, err
	}
	pageCount, err := api.PageCountFile(src)
	if err != nil {
		return diagnosis.Range{}, fmt.Errorf("failed to get page count: %w", err)
	}
	out, err := clampRange(rng, pageCount)
	if err != nil {
		return diagnosis.Range{}, err
	}
	selected := []string{fmt.Sprintf("%d-%d", out.Start, out.End)}
	if err := api.TrimFile(src, dst, selected, s.conf); err != nil {
		return diagnosis.Range{}, fmt.Errorf("failed to copy pages %d-%d: %w", out.Start, out.End, err)
	}
	return out, nil
}

func clampRange(rng diagnosis.Range, pageCount int) (diagnosis.Range, error) {
	if rng.Start < 1 || rng.End < rng.Start {
		return diagnosis.Range{}, fmt.Errorf("invalid page range %d-%d", rng.Start, rng.End)
	}
	if rng.Start > pageCount {
		return diagnosis.Range{}, fmt.Errorf("%w: page %d of %d", ErrStartOutOfRange, rng.Start, pageCount)
	}
	return diagnosis.Range{Start: rng.Start, End: min(rng.End, pageCount)}, nil
}
