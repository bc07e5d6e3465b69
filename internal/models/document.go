package models

import "time"

// Batch statuses, in lifecycle order.
const (
	StatusDiagnosing = "DIAGNOSING"
	StatusDiagnosed  = "DIAGNOSED"
	StatusExtracting = "EXTRACTING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Batch is the Firestore record for one diagnosed folder of documents.
// ManifestHash identifies the exact set of source files, so an unchanged
// folder re-uploaded under the same marker is recognised as a duplicate.
type Batch struct {
	ManifestHash        string    `firestore:"manifestHash,omitempty"`
	SourceBucket        string    `firestore:"sourceBucket,omitempty"`
	SourcePrefix        string    `firestore:"sourcePrefix,omitempty"`
	Family              string    `firestore:"family,omitempty"`
	PatternsVersion     string    `firestore:"patternsVersion,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	FileCount           int       `firestore:"fileCount,omitempty"`
	FailedCount         int       `firestore:"failedCount,omitempty"`
	DetectedSections    int       `firestore:"detectedSections,omitempty"`
	MissingSections     int       `firestore:"missingSections,omitempty"`
	UndatedCount        int       `firestore:"undatedCount,omitempty"`
	HandoffURI          string    `firestore:"handoffUri,omitempty"`
	ReportURI           string    `firestore:"reportUri,omitempty"`
	ExtractedCount      int       `firestore:"extractedCount,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"`
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}
