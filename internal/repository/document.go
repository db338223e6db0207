package repository

import (
	"context"

	"dropstack/internal/model"
)

// DocumentRepository defines data access for document metadata.
// Strictly persistence operations, no business logic.
type DocumentRepository interface {
	// Create inserts a new document record with version 0.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByIDAndOwner returns a document only when both id and owner match.
	// It returns ErrNotFound otherwise.
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Document, error)

	// ListByOwner returns a page of the owner's documents and the owner's total count.
	ListByOwner(ctx context.Context, ownerID string, pq PageQuery) (*PageResult[model.Document], error)

	// Save replaces the mutable fields of doc if the stored version equals doc.Version,
	// incrementing the version by one. It returns ErrOptimisticLock on a version mismatch.
	Save(ctx context.Context, doc *model.Document) (*model.Document, error)

	// UpdateCheckIn sets the check-in fields and increments the version in a single
	// conditional statement matching id and expectedVersion. It returns the number of
	// rows modified (0 or 1).
	UpdateCheckIn(ctx context.Context, id string, expectedVersion int64, fields model.CheckInFields) (int64, error)

	// Delete removes a document by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}
