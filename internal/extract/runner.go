package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Lllllllleong/contractsplitter/internal/detector"
	"github.com/Lllllllleong/contractsplitter/internal/diagnosis"
)

// OutputDirName is the folder, next to the sources, that receives the sections.
const OutputDirName = "pdfs_extraidos"

// Status of one section in an extraction pass.
type Status string

const (
	StatusExtracted Status = "extracted"
	StatusOmitted   Status = "omitted"
	StatusFailed    Status = "failed"
)

// SectionOutcome records what happened to one section.
type SectionOutcome struct {
	Name   string
	Status Status
	Pages  diagnosis.Range
	Output string
	Err    error
}

// FileOutcome records one source document. SkipReason is set when the whole
// document was passed over.
type FileOutcome struct {
	File       string
	Dir        string
	SkipReason string
	Sections   []SectionOutcome
}

// Outcome summarises an extraction pass.
type Outcome struct {
	Files     []FileOutcome
	Extracted int
	Omitted   int
	Failed    int
	Skipped   int
}

// Outputs lists every file written, in processing order.
func (o *Outcome) Outputs() []string {
	var out []string
	for _, f := range o.Files {
		for _, s := range f.Sections {
			if s.Status == StatusExtracted {
				out = append(out, s.Output)
			}
		}
	}
	return out
}

// Runner drives the extraction pass for one document family.
type Runner struct {
	Family    detector.Family
	Extractor RangeExtractor
	Logger    *slog.Logger
}

// Skip reasons.
const (
	skipErrorMarker = "diagnosis failed"
	skipMissing     = "source not found"
	skipUndated     = "no contract date"
)

// Run extracts every non-null section of h. Sources are read from sourceDir
// and sections written under outDir, one folder per document. Per-section
// failures are recorded in the Outcome; only cancellation and output folder
// errors stop the pass.
func (r *Runner) Run(ctx context.Context, h diagnosis.Handoff, sourceDir, outDir string) (*Outcome, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	files := make([]string, 0, len(h))
	for f := range h {
		files = append(files, f)
	}
	sort.Strings(files)

	out := &Outcome{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		logCtx := logger.With("file", file)
		fo, err := r.runFile(ctx, logCtx, file, h[file], sourceDir, outDir)
		if err != nil {
			return out, err
		}
		if fo.SkipReason != "" {
			out.Skipped++
			logCtx.Warn("Skipping document.", "reason", fo.SkipReason)
		}
		for _, s := range fo.Sections {
			switch s.Status {
			case StatusExtracted:
				out.Extracted++
			case StatusOmitted:
				out.Omitted++
			case StatusFailed:
				out.Failed++
			}
		}
		out.Files = append(out.Files, fo)
	}
	logger.Info("Extraction pass complete.",
		"extracted", out.Extracted, "omitted", out.Omitted, "failed", out.Failed, "skippedFiles", out.Skipped)
	return out, nil
}

func (r *Runner) runFile(ctx context.Context, logCtx *slog.Logger, file string, e *diagnosis.Entry, sourceDir, outDir string) (FileOutcome, error) {
	fo := FileOutcome{File: file}
	if e.Failed() {
		fo.SkipReason = skipErrorMarker
		return fo, nil
	}
	src := filepath.Join(sourceDir, file)
	if info, err := os.Stat(src); err != nil || info.IsDir() {
		fo.SkipReason = skipMissing
		return fo, nil
	}
	if r.Family == detector.FamilyContract && !e.Dated() {
		fo.SkipReason = skipUndated
		return fo, nil
	}

	worker := WorkerName(r.Family, file)
	var dir string
	var err error
	if r.Family == detector.FamilyRenewal {
		dir = filepath.Join(outDir, SanitizeName(strings.TrimSuffix(file, filepath.Ext(file))))
		err = os.MkdirAll(dir, 0o755)
	} else {
		dir, err = UniqueDir(outDir, worker)
	}
	if err != nil {
		return fo, fmt.Errorf("%s: %w", file, err)
	}
	fo.Dir = dir

	for _, sr := range e.Sections {
		so := SectionOutcome{Name: sr.Name}
		if sr.Range == nil {
			so.Status = StatusOmitted
			fo.Sections = append(fo.Sections, so)
			continue
		}
		so.Output = filepath.Join(dir, SectionFileName(sr.Name, e.ContractDate, worker, "pdf"))
		pages, err := r.Extractor.ExtractRange(ctx, src, *sr.Range, so.Output)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return fo, err
			}
			so.Status = StatusFailed
			so.Err = err
			logCtx.Error("Failed to extract section", "section", sr.Name, "error", err)
		} else {
			so.Status = StatusExtracted
			so.Pages = pages
			logCtx.Debug("Section extracted.", "section", sr.Name, "pages", fmt.Sprintf("%d-%d", pages.Start, pages.End))
		}
		fo.Sections = append(fo.Sections, so)
	}
	return fo, nil
}
