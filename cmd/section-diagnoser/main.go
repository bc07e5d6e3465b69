package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/contractsplitter/internal/services"
)

var (
	diagnoserInstance *services.DiagnoserFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("DiagnoseBatch", diagnoseBatch)
}

// main is required by the Go Functions Framework.
func main() {}

// diagnoseBatch is the Cloud Function entry point, fired for every object
// finalized in the source bucket.
func diagnoseBatch(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		diagnoserInstance, initErr = services.NewDiagnoser(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with batch context inside Process.
	return diagnoserInstance.Process(ctx, gcsEvent)
}
