package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dropstack/internal/config"
	"dropstack/internal/model"
	"dropstack/internal/repository"
	"dropstack/internal/storage"
)

// DefaultContentType is served when neither the object store nor the record knows the content type.
const DefaultContentType = "application/octet-stream"

const (
	opCreate     = "create"
	opRead       = "read"
	opList       = "list"
	opDownload   = "download"
	opCheckIn    = "checkin"
	opUpdate     = "update"
	opDelete     = "delete"
	opListAudits = "list_audits"
)

var tracer = otel.Tracer("dropstack/internal/service")

// CreateMetadata is the caller-supplied metadata of a new document.
type CreateMetadata struct {
	Title    string   `json:"Title"`
	MimeType string   `json:"MimeType"`
	Tags     []string `json:"Tags"`
}

// CreateContent is the content stream of a new document. Size must be known and positive.
type CreateContent struct {
	Reader           io.Reader
	Size             int64
	OriginalFilename string
}

// CheckInRequest sets the category code of the document at Version.
type CheckInRequest struct {
	CategoryCode string `json:"CategoryCode"`
	Version      int64  `json:"Version"`
}

// UpdateRequest replaces title and tags of the document at Version.
type UpdateRequest struct {
	Title   string   `json:"Title"`
	Tags    []string `json:"Tags"`
	Version int64    `json:"Version"`
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items      []model.Document `json:"data"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// DocumentService is the document lifecycle coordinator.
// Every operation is scoped to ownerID: documents of other owners are reported as ErrNotFound.
type DocumentService interface {
	// Create uploads the content, then persists metadata. If persisting fails the
	// uploaded object is deleted (best-effort) and the persistence error is returned.
	Create(ctx context.Context, ownerID string, meta CreateMetadata, content CreateContent) (*model.Document, error)

	// Read returns one document.
	Read(ctx context.Context, ownerID, id string) (*model.Document, error)

	// List returns a page of the owner's documents.
	List(ctx context.Context, ownerID string, page, pageSize int) (*DocumentListResult, error)

	// Download resolves a document's content. The caller must close the returned stream.
	Download(ctx context.Context, ownerID, id string) (*model.DocumentContent, error)

	// CheckIn sets the category code with a single conditional write on (id, version).
	CheckIn(ctx context.Context, ownerID, id string, req CheckInRequest) (*model.Document, error)

	// Update replaces title and tags under the store's optimistic version check.
	Update(ctx context.Context, ownerID, id string, req UpdateRequest) (*model.Document, error)

	// Delete removes the object, then the metadata record.
	Delete(ctx context.Context, ownerID, id string) error

	// ListAudits returns the document's audit entries, newest first.
	ListAudits(ctx context.Context, ownerID, id string) ([]model.DocumentAudit, error)
}

// Options configures a coordinator. DefaultBucket is required.
type Options struct {
	DefaultBucket string
	Timeouts      config.TimeoutConfig
	Pagination    config.PaginationConfig
	MaxUploadSize int64
	Logger        zerolog.Logger
	Metrics       *Metrics

	// Now and NewID default to time.Now().UTC() and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// documentService is a concrete implementation of DocumentService.
// It holds no locks: concurrent writers are arbitrated by the metadata store's conditional writes.
type documentService struct {
	store      storage.Storage
	docs       repository.DocumentRepository
	audits     repository.AuditRepository
	bucket     string
	timeouts   config.TimeoutConfig
	pagination config.PaginationConfig
	maxUpload  int64
	log        zerolog.Logger
	metrics    *Metrics
	now        func() time.Time
	newID      func() string
}

// NewDocumentService constructs the coordinator. It panics if a collaborator is nil or no bucket is configured.
func NewDocumentService(store storage.Storage, docs repository.DocumentRepository, audits repository.AuditRepository, opts Options) DocumentService {
	if store == nil || docs == nil || audits == nil {
		panic("service: NewDocumentService requires storage, document and audit repositories")
	}
	if opts.DefaultBucket == "" {
		panic("service: NewDocumentService requires a default bucket")
	}
	s := &documentService{
		store:      store,
		docs:       docs,
		audits:     audits,
		bucket:     opts.DefaultBucket,
		timeouts:   opts.Timeouts,
		pagination: opts.Pagination,
		maxUpload:  opts.MaxUploadSize,
		log:        opts.Logger.With().Str("component", "document_service").Logger(),
		metrics:    opts.Metrics,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.pagination.DefaultPageSize <= 0 {
		s.pagination.DefaultPageSize = 20
	}
	if s.pagination.MaxPageSize <= 0 {
		s.pagination.MaxPageSize = 100
	}
	return s
}

func (s *documentService) start(ctx context.Context, op, ownerID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "DocumentService."+op,
		trace.WithAttributes(attribute.String("dropstack.owner_id", ownerID)))
}

func (s *documentService) finish(span trace.Span, op string, err error) {
	s.metrics.observeOperation(op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

// find resolves (id, ownerID) and maps a missing or foreign record to ErrNotFound.
func (s *documentService) find(ctx context.Context, id, ownerID string) (*model.Document, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	mctx, cancel := withTimeout(ctx, s.timeouts.Metadata)
	defer cancel()

	doc, err := s.docs.FindByIDAndOwner(mctx, id, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

func (s *documentService) Create(ctx context.Context, ownerID string, meta CreateMetadata, content CreateContent) (doc *model.Document, err error) {
	ctx, span := s.start(ctx, opCreate, ownerID)
	defer func() { s.finish(span, opCreate, err) }()

	if err := meta.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := content.validate(s.maxUpload); err != nil {
		return nil, invalid(err)
	}

	bucket := s.bucket
	objectKey := s.newID()
	span.SetAttributes(attribute.String("dropstack.bucket", bucket), attribute.String("dropstack.object_key", objectKey))

	// The blob must exist before any metadata can point at it.
	uctx, cancel := withTimeout(ctx, s.timeouts.ObjectStore)
	err = s.store.Upload(uctx, bucket, objectKey, content.Reader, content.Size, meta.MimeType)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	stat := s.statBestEffort(ctx, bucket, objectKey)
	now := s.now()
	id := s.newID()

	s.fire(ctx, sideCall{
		name:    callTag,
		timeout: s.timeouts.ObjectStore,
		run: func(ctx context.Context) error {
			return s.store.SetTags(ctx, bucket, objectKey, map[string]string{
				"owner":       ownerID,
				"document-id": id,
			})
		},
		fields: objectFields(bucket, objectKey),
	})

	record := &model.Document{
		ID:        id,
		OwnerID:   ownerID,
		ObjectKey: objectKey,
		Bucket:    bucket,
		Title:     meta.Title,
		MimeType:  meta.MimeType,
		Size:      content.Size,
		Tags:      normalizeTags(meta.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if stat != nil {
		record.ETag = stat.ETag
	}

	mctx, cancel := withTimeout(ctx, s.timeouts.Metadata)
	saved, err := s.docs.Create(mctx, record)
	cancel()
	if err != nil {
		s.compensateUpload(ctx, bucket, objectKey, id)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	s.log.Info().
		Str("document_id", saved.ID).
		Str("owner_id", ownerID).
		Str("bucket", bucket).
		Str("object_key", objectKey).
		Int64("size", saved.Size).
		Msg("document created")
	return saved, nil
}

// compensateUpload deletes an object whose metadata could not be persisted.
// It runs detached from ctx so a cancelled or timed-out request still cleans up.
func (s *documentService) compensateUpload(ctx context.Context, bucket, objectKey, documentID string) {
	s.fire(context.WithoutCancel(ctx), sideCall{
		name:    callCompensation,
		timeout: s.timeouts.Compensation,
		run: func(ctx context.Context) error {
			return s.store.Delete(ctx, bucket, objectKey)
		},
		fields: func(e *zerolog.Event) *zerolog.Event {
			return e.Str("document_id", documentID).Str("bucket", bucket).Str("object_key", objectKey)
		},
	})
}

func (s *documentService) Read(ctx context.Context, ownerID, id string) (doc *model.Document, err error) {
	ctx, span := s.start(ctx, opRead, ownerID)
	defer func() { s.finish(span, opRead, err) }()

	return s.find(ctx, id, ownerID)
}

func (s *documentService) List(ctx context.Context, ownerID string, page, pageSize int) (res *DocumentListResult, err error) {
	ctx, span := s.start(ctx, opList, ownerID)
	defer func() { s.finish(span, opList, err) }()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.pagination.DefaultPageSize
	}
	if pageSize > s.pagination.MaxPageSize {
		pageSize = s.pagination.MaxPageSize
	}

	mctx, cancel := withTimeout(ctx, s.timeouts.Metadata)
	defer cancel()

	out, err := s.docs.ListByOwner(mctx, ownerID, repository.PageQuery{Page: page, PageSize: pageSize})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return &DocumentListResult{
		Items:      out.Items,
		Total:      out.Total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(out.Total) / float64(pageSize))),
	}, nil
}

func (s *documentService) Download(ctx context.Context, ownerID, id string) (dl *model.DocumentContent, err error) {
	ctx, span := s.start(ctx, opDownload, ownerID)
	defer func() { s.finish(span, opDownload, err) }()

	doc, err := s.find(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	stat := s.statBestEffort(ctx, doc.Bucket, doc.ObjectKey)

	contentType := DefaultContentType
	var contentLength *int64
	switch {
	case stat != nil && stat.ContentType != "":
		contentType = stat.ContentType
	case doc.MimeType != "":
		contentType = doc.MimeType
	}
	if stat != nil {
		size := stat.Size
		contentLength = &size
	}
	filename := doc.ObjectKey
	if strings.TrimSpace(doc.Title) != "" {
		filename = doc.Title
	}

	// The stream outlives this call, so it is bound to the caller's ctx and released on Close.
	sctx, cancel := context.WithCancel(ctx)
	rc, err := s.store.Download(sctx, doc.Bucket, doc.ObjectKey)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return &model.DocumentContent{
		Stream:        &releasingReader{ReadCloser: rc, release: cancel},
		ContentType:   contentType,
		ContentLength: contentLength,
		Filename:      filename,
	}, nil
}

// releasingReader cancels the download context once the consumer closes the stream.
type releasingReader struct {
	io.ReadCloser
	release context.CancelFunc
}

func (r *releasingReader) Close() error {
	defer r.release()
	return r.ReadCloser.Close()
}

func (s *documentService) CheckIn(ctx context.Context, ownerID, id string, req CheckInRequest) (doc *model.Document, err error) {
	ctx, span := s.start(ctx, opCheckIn, ownerID)
	defer func() { s.finish(span, opCheckIn, err) }()

	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}

	existing, err := s.find(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	// The conditional write below still arbitrates concurrent check-ins.
	if existing.Version != req.Version {
		return nil, ErrConflict
	}

	now := s.now()
	oldCategory := existing.CategoryCode

	mctx, cancel := withTimeout(ctx, s.timeouts.Metadata)
	modified, err := s.docs.UpdateCheckIn(mctx, id, req.Version, model.CheckInFields{
		CategoryCode: req.CategoryCode,
		CheckedInAt:  now,
		CheckedInBy:  ownerID,
		UpdatedAt:    now,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: check in: %w", ErrPersistenceFailed, err)
	}
	if modified == 0 {
		// Lost the race: report NotFound if the document was deleted meanwhile, Conflict otherwise.
		if _, ferr := s.find(ctx, id, ownerID); errors.Is(ferr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}

	updated, err := s.find(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &model.DocumentAudit{
		ID:         s.newID(),
		DocumentID: updated.ID,
		Type:       model.AuditTypeCheckIn,
		At:         now,
		By:         ownerID,
		Payload: map[string]any{
			"oldCategoryCode": optional(oldCategory),
			"newCategoryCode": optional(updated.CategoryCode),
		},
	})
	return updated, nil
}

func (s *documentService) Update(ctx context.Context, ownerID, id string, req UpdateRequest) (doc *model.Document, err error) {
	ctx, span := s.start(ctx, opUpdate, ownerID)
	defer func() { s.finish(span, opUpdate, err) }()

	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}

	existing, err := s.find(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	oldTitle, oldTags := existing.Title, existing.Tags

	// The store compares this version against the stored one.
	existing.Version = req.Version
	existing.Title = req.Title
	existing.Tags = normalizeTags(req.Tags)
	existing.UpdatedAt = s.now()

	mctx, cancel := withTimeout(ctx, s.timeouts.Metadata)
	saved, err := s.docs.Save(mctx, existing)
	cancel()
	switch {
	case errors.Is(err, repository.ErrOptimisticLock):
		return nil, ErrConflict
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: update: %w", ErrPersistenceFailed, err)
	}

	s.appendAudit(ctx, &model.DocumentAudit{
		ID:         s.newID(),
		DocumentID: saved.ID,
		Type:       model.AuditTypeUpdate,
		At:         saved.UpdatedAt,
		By:         ownerID,
		Payload: map[string]any{
			"oldTitle": oldTitle,
			"newTitle": saved.Title,
			"oldTags":  oldTags,
			"newTags":  saved.Tags,
		},
	})
	return saved, nil
}

func (s *documentService) Delete(ctx context.Context, ownerID, id string) (err error) {
	ctx, span := s.start(ctx, opDelete, ownerID)
	defer func() { s.finish(span, opDelete, err) }()

	doc, err := s.find(ctx, id, ownerID)
	if err != nil {
		return err
	}

	// Blob first: metadata is never removed while its blob might still exist.
	octx, cancel := withTimeout(ctx, s.timeouts.ObjectStore)
	err = s.store.Delete(octx, doc.Bucket, doc.ObjectKey)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeletionFailed, err)
	}

	mctx, cancel := withTimeout(ctx, s.timeouts.Metadata)
	err = s.docs.Delete(mctx, doc.ID)
	cancel()
	if err != nil {
		s.log.Error().Err(err).
			Str("document_id", doc.ID).
			Str("bucket", doc.Bucket).
			Str("object_key", doc.ObjectKey).
			Msg("blob deleted but metadata delete failed")
		return fmt.Errorf("%w: delete: %w", ErrPersistenceFailed, err)
	}

	s.appendAudit(ctx, &model.DocumentAudit{
		ID:         s.newID(),
		DocumentID: doc.ID,
		Type:       model.AuditTypeDelete,
		At:         s.now(),
		By:         ownerID,
		Payload: map[string]any{
			"bucket":    doc.Bucket,
			"objectKey": doc.ObjectKey,
			"version":   doc.Version,
		},
	})
	s.log.Info().Str("document_id", doc.ID).Str("owner_id", ownerID).Msg("document deleted")
	return nil
}

func (s *documentService) ListAudits(ctx context.Context, ownerID, id string) (out []model.DocumentAudit, err error) {
	ctx, span := s.start(ctx, opListAudits, ownerID)
	defer func() { s.finish(span, opListAudits, err) }()

	doc, err := s.find(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	actx, cancel := withTimeout(ctx, s.timeouts.Audit)
	defer cancel()

	out, err = s.audits.ListByDocument(actx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	return out, nil
}

// appendAudit records an audit entry. A failed append never undoes the operation it documents.
func (s *documentService) appendAudit(ctx context.Context, a *model.DocumentAudit) {
	s.fire(context.WithoutCancel(ctx), sideCall{
		name:    callAudit,
		timeout: s.timeouts.Audit,
		run: func(ctx context.Context) error {
			return s.audits.Append(ctx, a)
		},
		fields: func(e *zerolog.Event) *zerolog.Event {
			return e.Str("document_id", a.DocumentID).Str("audit_type", a.Type)
		},
	})
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
