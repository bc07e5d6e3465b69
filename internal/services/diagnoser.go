package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/contractsplitter/internal/batch"
	"github.com/Lllllllleong/contractsplitter/internal/corpus"
	"github.com/Lllllllleong/contractsplitter/internal/detector"
	"github.com/Lllllllleong/contractsplitter/internal/diagnosis"
	"github.com/Lllllllleong/contractsplitter/internal/gcp"
	"github.com/Lllllllleong/contractsplitter/internal/models"
	"github.com/Lllllllleong/contractsplitter/internal/patterns"
)

// ReportFileName is the XLSX triage report written next to the hand-off.
const ReportFileName = "diagnostico.xlsx"

type DiagnoserConfig struct {
	ProjectID        string
	HandoffBucket    string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
	Family           detector.Family
	Workers          int
	PatternsFile     string
	TriggerObject    string
}

type DiagnoserFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	library          *patterns.Library
	runner           *batch.Runner
	config           DiagnoserConfig
}

// GCSEvent is the payload of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func NewDiagnoser(ctx context.Context) (*DiagnoserFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	family, err := detector.ParseFamily(gcp.GetEnv("DOCUMENT_FAMILY", string(detector.FamilyContract)))
	if err != nil {
		return nil, err
	}

	config := DiagnoserConfig{
		ProjectID:        projectID,
		HandoffBucket:    gcp.GetEnv("HANDOFF_BUCKET", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "diagnosis_batches"),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "section-extraction"),
		Family:           family,
		Workers:          gcp.GetEnvInt("DIAGNOSIS_WORKERS", batch.DefaultWorkers),
		PatternsFile:     gcp.GetEnv("PATTERNS_FILE", ""),
		TriggerObject:    gcp.GetEnv("TRIGGER_OBJECT", "_READY"),
	}
	if config.HandoffBucket == "" {
		return nil, fmt.Errorf("HANDOFF_BUCKET environment variable must be set")
	}

	lib, err := patterns.Load(config.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern library: %w", err)
	}
	det, err := detector.New(config.Family, lib)
	if err != nil {
		return nil, err
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	f := &DiagnoserFunction{
		storageClient:    storageClient,
		firestoreClient:  firestoreClient,
		executionsClient: executionsClient,
		library:          lib,
		runner: &batch.Runner{
			Detector:  det,
			Extractor: corpus.NewPDFExtractor(),
			Workers:   config.Workers,
		},
		config: config,
	}
	slog.Info("Section diagnoser initialized.", "family", config.Family, "patternsVersion", lib.Version, "workflowId", config.WorkflowID)
	return f, nil
}

// Process diagnoses the folder that received the trigger marker. Any other
// object is ignored.
func (f *DiagnoserFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	prefix, ok := batchPrefix(e.Name, f.config.TriggerObject)
	if !ok {
		logCtx.Debug("Not a trigger object, ignoring.")
		return nil
	}
	logCtx = logCtx.With("sourcePrefix", prefix)
	logCtx.Info("Batch marker received.")

	src := f.storageClient.Bucket(e.Bucket)
	objects, err := gcp.ListObjects(ctx, src, prefix, ".pdf")
	if err != nil {
		logCtx.Error("Failed to list batch sources", "error", err)
		return err
	}
	objects = directChildren(objects, prefix)
	if len(objects) == 0 {
		logCtx.Warn("No PDF files found under the batch prefix.")
		return nil
	}

	tempDir, err := os.MkdirTemp("", "section-diagnoser-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	locals, err := downloadAll(ctx, src, objects, tempDir)
	if err != nil {
		logCtx.Error("Failed to download batch sources", "error", err)
		return err
	}
	hashes := make(map[string]string, len(locals))
	for _, p := range locals {
		h, err := calculateFileHash(p)
		if err != nil {
			return fmt.Errorf("failed to calculate file hash: %w", err)
		}
		hashes[filepath.Base(p)] = h
	}
	manifest := manifestHash(hashes)
	logCtx = logCtx.With("manifestHash", manifest)

	isDuplicate, existingID, err := f.isDuplicate(ctx, manifest)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate batch detected. Skipping.", "existingBatchId", existingID)
		return nil
	}

	batchID := uuid.NewString()
	docRef, err := f.createBatch(ctx, batchID, manifest, e.Bucket, prefix, len(locals))
	if err != nil {
		logCtx.Error("Failed to create batch record", "error", err)
		return err
	}
	logCtx = logCtx.With("batchId", batchID)
	logCtx.Info("Created batch record in Firestore.", "fileCount", len(locals))

	runner := *f.runner
	runner.Logger = logCtx
	agg, err := runner.Diagnose(ctx, locals, func(done, total int, file string) {
		logCtx.Debug("Diagnosis progress.", "done", done, "total", total, "file", file)
	})
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "diagnosis aborted", err)
	}

	handoff := agg.Handoff()
	summary := agg.Summary(diagnosis.DefaultThreshold(f.config.Family))
	handoffURI, reportURI, err := f.publish(ctx, batchID, handoff, summary)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to publish hand-off", err)
	}

	if err := gcp.UpdateStatus(ctx, docRef, models.StatusDiagnosed, "",
		firestore.Update{Path: "failedCount", Value: len(summary.Failed)},
		firestore.Update{Path: "detectedSections", Value: summary.Detected},
		firestore.Update{Path: "missingSections", Value: summary.Missing},
		firestore.Update{Path: "undatedCount", Value: len(summary.Undated)},
		firestore.Update{Path: "handoffUri", Value: handoffURI},
		firestore.Update{Path: "reportUri", Value: reportURI},
	); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to record diagnosis", err)
	}
	logCtx.Info("Batch diagnosed.",
		"detected", summary.Detected, "missing", summary.Missing,
		"failed", len(summary.Failed), "undated", len(summary.Undated))

	req := models.ExtractionRequest{
		BatchID:      batchID,
		HandoffURI:   handoffURI,
		SourceBucket: e.Bucket,
		SourcePrefix: prefix,
		Family:       string(f.config.Family),
	}
	if err := f.triggerWorkflow(ctx, logCtx, docRef, req); err != nil {
		return err
	}
	logCtx.Info("Hand-off to extraction workflow complete.")
	return nil
}

func (f *DiagnoserFunction) publish(ctx context.Context, batchID string, h diagnosis.Handoff, s diagnosis.Summary) (string, string, error) {
	bucket := f.storageClient.Bucket(f.config.HandoffBucket)

	var handoff bytes.Buffer
	if err := diagnosis.Encode(&handoff, h); err != nil {
		return "", "", err
	}
	handoffObject := path.Join(batchID, diagnosis.FileName)
	if err := gcp.SaveToGCSAtomically(ctx, bucket, handoffObject, handoff.Bytes()); err != nil {
		return "", "", err
	}

	var report bytes.Buffer
	if err := diagnosis.WriteXLSX(&report, h, s); err != nil {
		return "", "", err
	}
	reportObject := path.Join(batchID, ReportFileName)
	if err := gcp.SaveToGCSAtomically(ctx, bucket, reportObject, report.Bytes()); err != nil {
		return "", "", err
	}
	return gcp.GCSURI(f.config.HandoffBucket, handoffObject), gcp.GCSURI(f.config.HandoffBucket, reportObject), nil
}

func (f *DiagnoserFunction) isDuplicate(ctx context.Context, manifest string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.config.CollectionName).
		Where("manifestHash", "==", manifest).
		Where("family", "==", string(f.config.Family)).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 && docs[0].Data()["status"] != models.StatusFailed {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (f *DiagnoserFunction) createBatch(ctx context.Context, batchID, manifest, bucket, prefix string, fileCount int) (*firestore.DocumentRef, error) {
	docRef := f.firestoreClient.Collection(f.config.CollectionName).Doc(batchID)
	record := models.Batch{
		ManifestHash:    manifest,
		SourceBucket:    bucket,
		SourcePrefix:    prefix,
		Family:          string(f.config.Family),
		PatternsVersion: f.library.Version,
		Status:          models.StatusDiagnosing,
		FileCount:       fileCount,
		CreatedAt:       time.Now(),
	}
	if _, err := docRef.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create batch record: %w", err)
	}
	return docRef, nil
}

func (f *DiagnoserFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, req models.ExtractionRequest) error {
	logCtx.Info("Triggering workflow.")
	payloadBytes, err := json.Marshal(req)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to marshal workflow payload", err)
	}
	execReq := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := f.executionsClient.CreateExecution(ctx, execReq)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to trigger workflow execution", err)
	}
	if _, err := docRef.Update(ctx, []firestore.Update{{Path: "workflowExecutionId", Value: exec.GetName()}}); err != nil {
		logCtx.Warn("Failed to record workflow execution id", "error", err)
	}
	return nil
}

func (f *DiagnoserFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	return recordFailure(ctx, logCtx, docRef, message, originalErr)
}

// recordFailure logs, marks the batch FAILED and returns the wrapped error.
func recordFailure(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	if err := gcp.UpdateStatus(ctx, docRef, models.StatusFailed, fmt.Sprintf("%s: %v", message, originalErr)); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// batchPrefix returns the folder of a trigger object, with a trailing slash
// ("" for the bucket root).
func batchPrefix(object, trigger string) (string, bool) {
	if path.Base(object) != trigger {
		return "", false
	}
	dir := path.Dir(object)
	if dir == "." || dir == "/" {
		return "", true
	}
	return dir + "/", true
}

// directChildren drops objects inside nested folders of prefix.
func directChildren(objects []string, prefix string) []string {
	var out []string
	for _, o := range objects {
		rest := strings.TrimPrefix(o, prefix)
		if rest != "" && !strings.Contains(rest, "/") {
			out = append(out, o)
		}
	}
	sort.Strings(out)
	return out
}

// downloadAll fetches objects into dir concurrently, keeping base names, and
// returns the local paths in the order of objects.
func downloadAll(ctx context.Context, bucket *storage.BucketHandle, objects []string, dir string) ([]string, error) {
	locals := make([]string, len(objects))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for i, obj := range objects {
		locals[i] = filepath.Join(dir, path.Base(obj))
		eg.Go(func() error {
			if err := gcp.DownloadObject(gctx, bucket, obj, locals[i]); err != nil {
				if errors.Is(err, storage.ErrObjectNotExist) {
					return fmt.Errorf("%s disappeared during the batch: %w", obj, err)
				}
				return err
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return locals, nil
}

// manifestHash fingerprints a batch from its file names and content hashes.
func manifestHash(fileHashes map[string]string) string {
	names := make([]string, 0, len(fileHashes))
	for n := range fileHashes {
		names = append(names, n)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, n := range names {
		fmt.Fprintf(h, "%s:%s\n", n, fileHashes[n])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
