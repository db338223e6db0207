package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"dropstack/internal/model"
	"dropstack/internal/repository"
)

// AuditPostgres stores document audit entries in the document_audits table.
type AuditPostgres struct {
	db *sql.DB
}

// NewAuditPostgres creates a new AuditPostgres repository.
func NewAuditPostgres(db *sql.DB) *AuditPostgres {
	return &AuditPostgres{db: db}
}

var _ repository.AuditRepository = (*AuditPostgres)(nil)

// Append inserts one audit entry. Entries are never updated or deleted.
func (r *AuditPostgres) Append(ctx context.Context, a *model.DocumentAudit) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	const q = `
		INSERT INTO document_audits (id, document_id, type, at, by_owner, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.ExecContext(ctx, q, a.ID, a.DocumentID, a.Type, a.At, a.By, string(payload))
	return mapError(err)
}

// ListByDocument returns the document's audit entries, newest first.
func (r *AuditPostgres) ListByDocument(ctx context.Context, documentID string) ([]model.DocumentAudit, error) {
	const q = `
		SELECT id, document_id, type, at, by_owner, payload
		FROM document_audits
		WHERE document_id = $1
		ORDER BY at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.DocumentAudit, 0)
	for rows.Next() {
		var (
			a       model.DocumentAudit
			payload []byte
		)
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Type, &a.At, &a.By, &payload); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &a.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
