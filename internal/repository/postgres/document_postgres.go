package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dropstack/internal/model"
	"dropstack/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, owner_id, object_key, bucket, etag, title, mime_type, size, tags,
		category_code, created_at, updated_at, checked_in_at, checked_in_by, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*model.Document, error) {
	var (
		d           model.Document
		etag        sql.NullString
		tags        []byte
		category    sql.NullString
		checkedInAt sql.NullTime
		checkedInBy sql.NullString
	)
	if err := s.Scan(
		&d.ID,
		&d.OwnerID,
		&d.ObjectKey,
		&d.Bucket,
		&etag,
		&d.Title,
		&d.MimeType,
		&d.Size,
		&tags,
		&category,
		&d.CreatedAt,
		&d.UpdatedAt,
		&checkedInAt,
		&checkedInBy,
		&d.Version,
	); err != nil {
		return nil, err
	}
	d.ETag = etag.String
	d.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &d.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if category.Valid {
		d.CategoryCode = &category.String
	}
	if checkedInAt.Valid {
		t := checkedInAt.Time
		d.CheckedInAt = &t
	}
	if checkedInBy.Valid {
		d.CheckedInBy = &checkedInBy.String
	}
	return &d, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimePtr(doc *model.Document) sql.NullTime {
	if doc.CheckedInAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *doc.CheckedInAt, Valid: true}
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	tags, err := encodeTags(doc.Tags)
	if err != nil {
		return nil, err
	}
	q := `
		INSERT INTO documents (id, owner_id, object_key, bucket, etag, title, mime_type, size, tags,
			category_code, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.OwnerID,
		doc.ObjectKey,
		doc.Bucket,
		nullString(doc.ETag),
		doc.Title,
		doc.MimeType,
		doc.Size,
		tags,
		nullStringPtr(doc.CategoryCode),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	out, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// FindByIDAndOwner fetches a single document scoped to its owner.
func (r *DocumentPostgres) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND owner_id = $2`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id, ownerID))
	if err != nil {
		return nil, mapError(err)
	}
	return d, nil
}

// ListByOwner returns the owner's documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) ListByOwner(ctx context.Context, ownerID string, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM documents WHERE owner_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, ownerID).Scan(&total); err != nil {
		return nil, err
	}

	qList := `SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, qList, ownerID, pq.PageSize, pq.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// Save replaces the mutable columns under an optimistic version check.
// The owner, bucket, object key and creation time are never rewritten.
func (r *DocumentPostgres) Save(ctx context.Context, doc *model.Document) (*model.Document, error) {
	tags, err := encodeTags(doc.Tags)
	if err != nil {
		return nil, err
	}
	q := `
		UPDATE documents
		SET etag = $1, title = $2, mime_type = $3, size = $4, tags = $5, category_code = $6,
			checked_in_at = $7, checked_in_by = $8, updated_at = $9, version = version + 1
		WHERE id = $10 AND owner_id = $11 AND version = $12
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		nullString(doc.ETag),
		doc.Title,
		doc.MimeType,
		doc.Size,
		tags,
		nullStringPtr(doc.CategoryCode),
		nullTimePtr(doc),
		nullStringPtr(doc.CheckedInBy),
		doc.UpdatedAt,
		doc.ID,
		doc.OwnerID,
		doc.Version,
	)
	out, err := scanDocument(row)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapError(err)
	}

	// Nothing matched: either the version moved or the row is gone.
	const qExists = `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND owner_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, qExists, doc.ID, doc.OwnerID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrOptimisticLock
}

// UpdateCheckIn applies the check-in field set in one conditional UPDATE.
func (r *DocumentPostgres) UpdateCheckIn(ctx context.Context, id string, expectedVersion int64, fields model.CheckInFields) (int64, error) {
	const q = `
		UPDATE documents
		SET category_code = $1, checked_in_at = $2, checked_in_by = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`
	res, err := r.db.ExecContext(ctx, q,
		fields.CategoryCode,
		fields.CheckedInAt,
		fields.CheckedInBy,
		fields.UpdatedAt,
		id,
		expectedVersion,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes a document by ID. It does not return an error if the row does not exist.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
