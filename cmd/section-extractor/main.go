package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/contractsplitter/internal/models"
	"github.com/Lllllllleong/contractsplitter/internal/services"
)

var (
	extractorInstance *services.ExtractorFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleExtractSections", handleExtractSections)
}

// main is required by the Go Functions Framework.
func main() {}

// handleExtractSections is the HTTP handler called by the extraction workflow.
func handleExtractSections(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		extractorInstance, initErr = services.NewExtractor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Extractor initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := extractorInstance.Process(r.Context(), &req)
	if err != nil {
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error(
			"Failed to write response",
			"error", err,
			"batchId", req.BatchID,
			"executionId", req.ExecutionID,
		)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
