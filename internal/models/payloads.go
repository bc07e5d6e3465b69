package models

// These structs define the JSON payloads exchanged between the Cloud Workflow
// and the section extractor function.

// ExtractionRequest is the input for the section-extractor function. The
// diagnoser passes the same fields as the workflow argument.
type ExtractionRequest struct {
	BatchID      string `json:"batchId"`
	HandoffURI   string `json:"handoffUri"`
	SourceBucket string `json:"sourceBucket"`
	SourcePrefix string `json:"sourcePrefix"`
	Family       string `json:"family"`
	ExecutionID  string `json:"executionId"`
}

// ExtractionResponse is the output of the section-extractor function.
type ExtractionResponse struct {
	Status       string `json:"status"`
	Extracted    int    `json:"extracted"`
	Failed       int    `json:"failed"`
	SkippedFiles int    `json:"skippedFiles"`
	OutputPrefix string `json:"outputPrefix"`
}
