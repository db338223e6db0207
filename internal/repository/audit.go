package repository

import (
	"context"

	"dropstack/internal/model"
)

// AuditRepository is an append-only store of document audit entries.
type AuditRepository interface {
	// Append inserts a new audit entry.
	Append(ctx context.Context, audit *model.DocumentAudit) error

	// ListByDocument returns a document's entries, newest first.
	ListByDocument(ctx context.Context, documentID string) ([]model.DocumentAudit, error)
}
