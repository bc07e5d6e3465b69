// Command contract-splitter diagnoses and splits folders of scanned
// employment contracts on a workstation.
//
//	contract-splitter diagnose -dir <folder> [-family contratos|renovaciones] [-patterns file.yaml] [-workers N] [-out handoff.json] [-report report.xlsx]
//	contract-splitter extract  -dir <folder> [-family ...] [-handoff handoff.json] [-out folder]
//	contract-splitter report   -handoff handoff.json [-family ...] [-xlsx report.xlsx]
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/Lllllllleong/contractsplitter/internal/batch"
	"github.com/Lllllllleong/contractsplitter/internal/corpus"
	"github.com/Lllllllleong/contractsplitter/internal/detector"
	"github.com/Lllllllleong/contractsplitter/internal/diagnosis"
	"github.com/Lllllllleong/contractsplitter/internal/extract"
	"github.com/Lllllllleong/contractsplitter/internal/patterns"
)

const usage = `usage: contract-splitter <diagnose|extract|report> [flags]`

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return exitUsage
	}
	var cmd func(context.Context, []string, io.Writer, io.Writer) error
	switch args[0] {
	case "diagnose":
		cmd = runDiagnose
	case "extract":
		cmd = runExtract
	case "report":
		cmd = runReport
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage)
		return exitUsage
	}
	err := cmd(ctx, args[1:], stdout, stderr)
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.As(err, &ue):
		fmt.Fprintln(stderr, ue.Error())
		return exitUsage
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return usageError{msg: fmt.Sprintf("unexpected arguments: %v", fs.Args())}
	}
	return nil
}

func runDiagnose(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("diagnose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "folder containing the source PDFs")
	familyName := fs.String("family", string(detector.FamilyContract), "document family: contratos or renovaciones")
	patternsFile := fs.String("patterns", "", "YAML pattern overrides")
	workers := fs.Int("workers", batch.DefaultWorkers, "documents diagnosed concurrently")
	out := fs.String("out", "", "hand-off path (default <dir>/"+diagnosis.FileName+")")
	reportPath := fs.String("report", "", "also write an XLSX report to this path")
	verbose := fs.Bool("v", false, "debug logging")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *dir == "" {
		return usageError{msg: "diagnose: -dir is required"}
	}
	family, err := detector.ParseFamily(*familyName)
	if err != nil {
		return usageError{msg: err.Error()}
	}
	if *out == "" {
		*out = filepath.Join(*dir, diagnosis.FileName)
	}

	logger := newLogger(stderr, *verbose)
	lib, err := patterns.Load(*patternsFile)
	if err != nil {
		return err
	}
	det, err := detector.New(family, lib, detector.WithLogger(logger))
	if err != nil {
		return err
	}
	sources, err := batch.ListSources(*dir)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no PDF files in %s", *dir)
	}
	logger.Info("Starting diagnosis.", "dir", *dir, "family", family, "files", len(sources), "patternsVersion", lib.Version)

	runner := &batch.Runner{Detector: det, Extractor: corpus.NewPDFExtractor(), Workers: *workers, Logger: logger}
	agg, err := runner.Diagnose(ctx, sources, func(done, total int, file string) {
		logger.Info("Progress.", "done", done, "total", total, "file", file)
	})
	if err != nil {
		return err
	}
	h := agg.Handoff()
	if err := diagnosis.WriteFile(*out, h); err != nil {
		return err
	}
	summary := agg.Summary(diagnosis.DefaultThreshold(family))
	if *reportPath != "" {
		if err := writeXLSX(*reportPath, h, summary); err != nil {
			return err
		}
	}
	logger.Info("Hand-off written.", "path", *out)
	return diagnosis.WriteText(stdout, summary)
}

func runExtract(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "folder containing the source PDFs")
	familyName := fs.String("family", string(detector.FamilyContract), "document family: contratos or renovaciones")
	handoffPath := fs.String("handoff", "", "hand-off path (default <dir>/"+diagnosis.FileName+")")
	out := fs.String("out", "", "output folder (default <dir>/"+extract.OutputDirName+")")
	verbose := fs.Bool("v", false, "debug logging")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *dir == "" {
		return usageError{msg: "extract: -dir is required"}
	}
	family, err := detector.ParseFamily(*familyName)
	if err != nil {
		return usageError{msg: err.Error()}
	}
	if *handoffPath == "" {
		*handoffPath = filepath.Join(*dir, diagnosis.FileName)
	}
	if *out == "" {
		*out = filepath.Join(*dir, extract.OutputDirName)
	}

	h, err := diagnosis.ReadFile(*handoffPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, *verbose)
	runner := &extract.Runner{Family: family, Extractor: extract.NewPDFSplitter(), Logger: logger}
	outcome, err := runner.Run(ctx, h, *dir, *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Secciones extraídas: %d\nSecciones con error: %d\nSecciones no detectadas: %d\nArchivos omitidos: %d\nCarpeta de salida: %s\n",
		outcome.Extracted, outcome.Failed, outcome.Omitted, outcome.Skipped, *out)
	return nil
}

func runReport(_ context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	handoffPath := fs.String("handoff", "", "hand-off path")
	familyName := fs.String("family", string(detector.FamilyContract), "document family: contratos or renovaciones")
	threshold := fs.Int("threshold", 0, "incompleteness threshold (default depends on family)")
	xlsxPath := fs.String("xlsx", "", "also write an XLSX report to this path")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *handoffPath == "" {
		return usageError{msg: "report: -handoff is required"}
	}
	family, err := detector.ParseFamily(*familyName)
	if err != nil {
		return usageError{msg: err.Error()}
	}
	if *threshold <= 0 {
		*threshold = diagnosis.DefaultThreshold(family)
	}
	h, err := diagnosis.ReadFile(*handoffPath)
	if err != nil {
		return err
	}
	summary := diagnosis.Summarize(h, *threshold)
	if *xlsxPath != "" {
		if err := writeXLSX(*xlsxPath, h, summary); err != nil {
			return err
		}
	}
	return diagnosis.WriteText(stdout, summary)
}

func writeXLSX(path string, h diagnosis.Handoff, s diagnosis.Summary) error {
	var buf bytes.Buffer
	if err := diagnosis.WriteXLSX(&buf, h, s); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
