// Package batch diagnoses a folder of documents concurrently.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/contractsplitter/internal/corpus"
	"github.com/Lllllllleong/contractsplitter/internal/detector"
	"github.com/Lllllllleong/contractsplitter/internal/diagnosis"
)

// DefaultWorkers bounds concurrent documents when Runner.Workers is unset.
const DefaultWorkers = 4

// Progress is called after each document with the number finished so far.
type Progress func(done, total int, file string)

// Runner diagnoses many documents with one detector.
type Runner struct {
	Detector  detector.Detector
	Extractor corpus.TextExtractor
	Workers   int
	Logger    *slog.Logger
}

type slot struct {
	file string
	res  *detector.Result
	err  error
}

// Diagnose runs detection over sources (file paths) and aggregates the
// results keyed by base file name. A document that cannot be read, or whose
// detection panics, is recorded with an error marker; the batch continues.
// Cancellation is checked before each document starts and returns ctx.Err().
func (r *Runner) Diagnose(ctx context.Context, sources []string, progress Progress) (*diagnosis.Aggregator, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	slots := make([]slot, len(sources))
	var (
		mu   sync.Mutex
		done int
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, src := range sources {
		if err := gctx.Err(); err != nil {
			break
		}
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			file := filepath.Base(src)
			logCtx := logger.With("file", file)
			res, err := r.diagnoseOne(gctx, src)
			if err != nil {
				logCtx.Error("Failed to diagnose document", "error", err)
			} else {
				logCtx.Info("Document diagnosed.", "pages", res.TotalPages, "sections", res.Detected(), "date", res.ContractDate)
			}
			slots[i] = slot{file: file, res: res, err: err}

			if progress != nil {
				mu.Lock()
				done++
				n := done
				mu.Unlock()
				progress(n, len(sources), file)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg := diagnosis.NewAggregator(r.Detector.SectionNames())
	for _, s := range slots {
		if s.err != nil {
			agg.AddFailure(s.file, s.err)
			continue
		}
		agg.Add(s.file, s.res)
	}
	return agg, nil
}

func (r *Runner) diagnoseOne(ctx context.Context, src string) (res *detector.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("detection panicked: %v", p)
		}
	}()
	c, err := r.Extractor.Extract(ctx, src)
	if err != nil {
		return nil, err
	}
	return r.Detector.Detect(c), nil
}

// ListSources returns the PDF files directly inside dir, sorted by name.
func ListSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
