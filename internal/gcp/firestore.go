package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// UpdateStatus sets a batch record's status, plus errorDetails when non-empty.
// Extra updates are applied in the same write.
func UpdateStatus(ctx context.Context, docRef *firestore.DocumentRef, status, errDetails string, extra ...firestore.Update) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	updates = append(updates, extra...)
	if _, err := docRef.Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update status to %s: %w", status, err)
	}
	return nil
}
