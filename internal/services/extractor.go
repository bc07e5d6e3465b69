package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/contractsplitter/internal/detector"
	"github.com/Lllllllleong/contractsplitter/internal/diagnosis"
	"github.com/Lllllllleong/contractsplitter/internal/extract"
	"github.com/Lllllllleong/contractsplitter/internal/gcp"
	"github.com/Lllllllleong/contractsplitter/internal/models"
)

// ExtractorConfig holds configuration for the section-extractor service.
type ExtractorConfig struct {
	ProjectID      string
	SectionsBucket string
	CollectionName string
}

// ExtractorFunction holds dependencies for the extraction pass.
type ExtractorFunction struct {
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	splitter        extract.RangeExtractor
	config          ExtractorConfig
}

// NewExtractor creates a new ExtractorFunction instance.
func NewExtractor(ctx context.Context) (*ExtractorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := ExtractorConfig{
		ProjectID:      projectID,
		SectionsBucket: gcp.GetEnv("SECTIONS_BUCKET", ""),
		CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "diagnosis_batches"),
	}
	if config.SectionsBucket == "" {
		return nil, fmt.Errorf("SECTIONS_BUCKET must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &ExtractorFunction{
		storageClient:   storageClient,
		firestoreClient: firestoreClient,
		splitter:        extract.NewPDFSplitter(),
		config:          config,
	}, nil
}

// Process runs the extraction pass for one diagnosed batch. A malformed
// hand-off fails the batch before any source is downloaded.
func (f *ExtractorFunction) Process(ctx context.Context, req *models.ExtractionRequest) (*models.ExtractionResponse, error) {
	logCtx := slog.With("batchId", req.BatchID, "executionId", req.ExecutionID)
	logCtx.Info("Starting extraction.", "handoffUri", req.HandoffURI)

	if req.BatchID == "" {
		return nil, fmt.Errorf("batchId is required")
	}
	docRef := f.firestoreClient.Collection(f.config.CollectionName).Doc(req.BatchID)

	family, err := detector.ParseFamily(req.Family)
	if err != nil {
		return nil, recordFailure(ctx, logCtx, docRef, "invalid document family", err)
	}
	handoff, err := f.loadHandoff(ctx, req.HandoffURI)
	if err != nil {
		return nil, recordFailure(ctx, logCtx, docRef, "failed to load hand-off", err)
	}
	if err := gcp.UpdateStatus(ctx, docRef, models.StatusExtracting, ""); err != nil {
		return nil, recordFailure(ctx, logCtx, docRef, "failed to update status", err)
	}

	tempDir, err := os.MkdirTemp("", "section-extractor-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)
	srcDir := filepath.Join(tempDir, "src")
	outDir := filepath.Join(tempDir, extract.OutputDirName)
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create source dir: %w", err)
	}

	if err := f.downloadSources(ctx, logCtx, req, handoff, srcDir); err != nil {
		return nil, recordFailure(ctx, logCtx, docRef, "failed to download sources", err)
	}

	runner := &extract.Runner{Family: family, Extractor: f.splitter, Logger: logCtx}
	outcome, err := runner.Run(ctx, handoff, srcDir, outDir)
	if err != nil {
		return nil, recordFailure(ctx, logCtx, docRef, "extraction aborted", err)
	}

	outputPrefix := req.BatchID + "/"
	if err := f.uploadOutputs(ctx, outDir, outputPrefix, outcome.Outputs()); err != nil {
		return nil, recordFailure(ctx, logCtx, docRef, "one or more sections failed to upload", err)
	}

	if err := gcp.UpdateStatus(ctx, docRef, models.StatusCompleted, "",
		firestore.Update{Path: "extractedCount", Value: outcome.Extracted},
	); err != nil {
		return nil, recordFailure(ctx, logCtx, docRef, "failed to record extraction", err)
	}
	logCtx.Info("Extraction complete.", "extracted", outcome.Extracted, "failed", outcome.Failed, "skippedFiles", outcome.Skipped)

	return &models.ExtractionResponse{
		Status:       "success",
		Extracted:    outcome.Extracted,
		Failed:       outcome.Failed,
		SkippedFiles: outcome.Skipped,
		OutputPrefix: gcp.GCSURI(f.config.SectionsBucket, outputPrefix),
	}, nil
}

func (f *ExtractorFunction) loadHandoff(ctx context.Context, uri string) (diagnosis.Handoff, error) {
	bucket, object, err := gcp.ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	data, err := gcp.ReadObject(ctx, f.storageClient.Bucket(bucket), object)
	if err != nil {
		return nil, err
	}
	return diagnosis.Decode(bytes.NewReader(data))
}

// sourceObject pairs a hand-off file with the object it is read from.
type sourceObject struct {
	File   string
	Object string
}

// sourceObjects lists the objects to fetch for h, skipping files whose
// diagnosis failed. The result is sorted by file name.
func sourceObjects(prefix string, h diagnosis.Handoff) []sourceObject {
	var out []sourceObject
	for file, e := range h {
		if e == nil || e.Failed() {
			continue
		}
		out = append(out, sourceObject{File: file, Object: prefix + file})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// downloadSources fetches every source named in the hand-off. Missing objects
// are left for the runner to report as skipped.
func (f *ExtractorFunction) downloadSources(ctx context.Context, logCtx *slog.Logger, req *models.ExtractionRequest, h diagnosis.Handoff, dir string) error {
	bucket := f.storageClient.Bucket(req.SourceBucket)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for _, src := range sourceObjects(req.SourcePrefix, h) {
		local := filepath.Join(dir, src.File)
		eg.Go(func() error {
			err := gcp.DownloadObject(gctx, bucket, src.Object, local)
			if errors.Is(err, storage.ErrObjectNotExist) {
				logCtx.Warn("Source object not found.", "gcsObject", src.Object)
				_ = os.Remove(local)
				return nil
			}
			return err
		})
	}
	return eg.Wait()
}

// upload maps an extracted section file to its destination object.
type upload struct {
	Local  string
	Object string
}

// uploadPlan places every output under prefix, keeping its path relative to
// outDir. Outputs outside outDir are rejected.
func uploadPlan(outDir, prefix string, outputs []string) ([]upload, error) {
	plan := make([]upload, 0, len(outputs))
	for _, local := range outputs {
		rel, err := filepath.Rel(outDir, local)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("output %s outside %s", local, outDir)
		}
		plan = append(plan, upload{Local: local, Object: path.Join(prefix, filepath.ToSlash(rel))})
	}
	return plan, nil
}

func (f *ExtractorFunction) uploadOutputs(ctx context.Context, outDir, prefix string, outputs []string) error {
	plan, err := uploadPlan(outDir, prefix, outputs)
	if err != nil {
		return err
	}
	bucket := f.storageClient.Bucket(f.config.SectionsBucket)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for _, u := range plan {
		eg.Go(func() error {
			if err := gcp.UploadFile(gctx, bucket, u.Local, u.Object); err != nil {
				return fmt.Errorf("%s: %w", u.Object, err)
			}
			return nil
		})
	}
	return eg.Wait()
}
