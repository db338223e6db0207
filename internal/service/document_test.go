package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dropstack/internal/model"
	"dropstack/internal/repository"
	repoMocks "dropstack/internal/repository/mocks"
	"dropstack/internal/storage"
	storeMocks "dropstack/internal/storage/mocks"
)

func strPtr(s string) *string { return &s }

func TestNewDocumentService_PanicsWithoutCollaborators(t *testing.T) {
	store := new(storeMocks.MockStorage)
	docs := new(repoMocks.MockDocumentRepository)
	audits := new(repoMocks.MockAuditRepository)

	assert.Panics(t, func() { NewDocumentService(nil, docs, audits, testOptions()) })
	assert.Panics(t, func() { NewDocumentService(store, nil, audits, testOptions()) })
	assert.Panics(t, func() { NewDocumentService(store, docs, nil, testOptions()) })

	opts := testOptions()
	opts.DefaultBucket = ""
	assert.Panics(t, func() { NewDocumentService(store, docs, audits, opts) })
}

func TestDocumentService_Create(t *testing.T) {
	meta := CreateMetadata{Title: "My Doc", MimeType: "application/pdf", Tags: []string{"finance"}}
	persistErr := errors.New("connection reset")

	tests := []struct {
		name       string
		meta       CreateMetadata
		content    func() CreateContent
		setupMocks func(t *testing.T, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository)
		wantKind   ErrorKind
		check      func(t *testing.T, doc *model.Document, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository)
	}{
		{
			name: "happy path",
			meta: meta,
			setupMocks: func(t *testing.T, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				mStore.On("Upload", mock.Anything, "docs", "id-1", mock.Anything, int64(1024), "application/pdf").Return(nil)
				mStore.On("Stat", mock.Anything, "docs", "id-1").Return(&storage.ObjectStat{Size: 1024, ETag: "etag-1", ContentType: "application/pdf"}, nil)
				mStore.On("SetTags", mock.Anything, "docs", "id-1", map[string]string{"owner": "owner-1", "document-id": "id-2"}).Return(nil)
				mDocs.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool {
					return d.ID == "id-2" && d.OwnerID == "owner-1" && d.Bucket == "docs" && d.ObjectKey == "id-1" &&
						d.ETag == "etag-1" && d.Size == 1024 && d.CreatedAt.Equal(testNow) && d.UpdatedAt.Equal(testNow)
				})).Return(&model.Document{ID: "id-2", OwnerID: "owner-1", Bucket: "docs", ObjectKey: "id-1", Size: 1024, Title: "My Doc"}, nil)
			},
			check: func(t *testing.T, doc *model.Document, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				assert.Equal(t, "id-2", doc.ID)
				assert.Equal(t, int64(0), doc.Version)
				assert.NotEmpty(t, doc.Bucket)
				assert.NotEmpty(t, doc.ObjectKey)
				mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "stat and tag failures are tolerated",
			meta: meta,
			setupMocks: func(t *testing.T, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				mStore.On("Upload", mock.Anything, "docs", "id-1", mock.Anything, int64(1024), "application/pdf").Return(nil)
				mStore.On("Stat", mock.Anything, "docs", "id-1").Return(nil, errors.New("stat timeout"))
				mStore.On("SetTags", mock.Anything, "docs", "id-1", mock.Anything).Return(errors.New("tagging disabled"))
				mDocs.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool {
					return d.ETag == ""
				})).Return(&model.Document{ID: "id-2", Bucket: "docs", ObjectKey: "id-1", Size: 1024}, nil)
			},
			check: func(t *testing.T, doc *model.Document, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				assert.Equal(t, "id-2", doc.ID)
				assert.Empty(t, doc.ETag)
			},
		},
		{
			name: "upload failure writes no metadata",
			meta: meta,
			setupMocks: func(t *testing.T, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				mStore.On("Upload", mock.Anything, "docs", "id-1", mock.Anything, int64(1024), "application/pdf").
					Return(&storage.Error{Op: "upload", Bucket: "docs", Key: "id-1", Err: errors.New("503")})
			},
			wantKind: KindUploadFailure,
			check: func(t *testing.T, _ *model.Document, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				mDocs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				mStore.AssertNotCalled(t, "Stat", mock.Anything, mock.Anything, mock.Anything)
				mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "persistence failure deletes the uploaded object",
			meta: meta,
			setupMocks: func(t *testing.T, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				mStore.On("Upload", mock.Anything, "docs", "id-1", mock.Anything, int64(1024), "application/pdf").Return(nil)
				mStore.On("Stat", mock.Anything, "docs", "id-1").Return(nil, nil)
				mStore.On("SetTags", mock.Anything, "docs", "id-1", mock.Anything).Return(nil)
				mDocs.On("Create", mock.Anything, mock.Anything).Return(nil, persistErr)
				mStore.On("Delete", mock.Anything, "docs", "id-1").Return(nil).Once()
			},
			wantKind: KindPersistenceFailure,
			check: func(t *testing.T, _ *model.Document, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				mStore.AssertCalled(t, "Delete", mock.Anything, "docs", "id-1")
			},
		},
		{
			name: "compensation is attempted even when it fails",
			meta: meta,
			setupMocks: func(t *testing.T, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				mStore.On("Upload", mock.Anything, "docs", "id-1", mock.Anything, int64(1024), "application/pdf").Return(nil)
				mStore.On("Stat", mock.Anything, "docs", "id-1").Return(nil, nil)
				mStore.On("SetTags", mock.Anything, "docs", "id-1", mock.Anything).Return(nil)
				mDocs.On("Create", mock.Anything, mock.Anything).Return(nil, persistErr)
				mStore.On("Delete", mock.Anything, "docs", "id-1").Return(errors.New("access denied")).Once()
			},
			wantKind: KindPersistenceFailure,
			check: func(t *testing.T, _ *model.Document, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				mStore.AssertNumberOfCalls(t, "Delete", 1)
			},
		},
		{
			name: "blank title",
			meta: CreateMetadata{Title: "   ", MimeType: "application/pdf"},
			setupMocks: func(t *testing.T, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
			},
			wantKind: KindValidation,
			check: func(t *testing.T, _ *model.Document, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
				mStore.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "nil reader",
			meta: meta,
			content: func() CreateContent {
				return CreateContent{Size: 10, OriginalFilename: "a.pdf"}
			},
			setupMocks: func(t *testing.T, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
			},
			wantKind: KindValidation,
		},
		{
			name: "content larger than the upload limit",
			meta: meta,
			content: func() CreateContent {
				return CreateContent{Reader: strings.NewReader("x"), Size: 2 << 20, OriginalFilename: "a.pdf"}
			},
			setupMocks: func(t *testing.T, mStore *storeMocks.MockStorage, mDocs *repoMocks.MockDocumentRepository) {
			},
			wantKind: KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mDocs := new(repoMocks.MockDocumentRepository)
			mAudits := new(repoMocks.MockAuditRepository)
			tt.setupMocks(t, mStore, mDocs)

			content := CreateContent{Reader: strings.NewReader(strings.Repeat("a", 1024)), Size: 1024, OriginalFilename: "doc.pdf"}
			if tt.content != nil {
				content = tt.content()
			}

			svc := newTestService(mStore, mDocs, mAudits)
			doc, err := svc.Create(context.Background(), "owner-1", tt.meta, content)

			if tt.wantKind != KindNone {
				require.Error(t, err)
				assert.Nil(t, doc)
				assert.Equal(t, tt.wantKind, KindOf(err))
			} else {
				require.NoError(t, err)
				require.NotNil(t, doc)
			}
			if tt.check != nil {
				tt.check(t, doc, mStore, mDocs)
			}
			mStore.AssertExpectations(t)
			mDocs.AssertExpectations(t)
			mAudits.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
		})
	}
}

func TestDocumentService_Create_CompensatesAfterCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mStore := new(storeMocks.MockStorage)
	mDocs := new(repoMocks.MockDocumentRepository)
	mAudits := new(repoMocks.MockAuditRepository)

	mStore.On("Upload", mock.Anything, "docs", "id-1", mock.Anything, int64(3), "text/plain").Return(nil)
	mStore.On("Stat", mock.Anything, "docs", "id-1").Return(nil, nil)
	mStore.On("SetTags", mock.Anything, "docs", "id-1", mock.Anything).Return(nil)
	mDocs.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)

	var compensationCtxErr error = errors.New("compensation not run")
	mStore.On("Delete", mock.Anything, "docs", "id-1").
		Run(func(args mock.Arguments) {
			compensationCtxErr = args.Get(0).(context.Context).Err()
		}).
		Return(nil)

	svc := newTestService(mStore, mDocs, mAudits)
	_, err := svc.Create(ctx, "owner-1",
		CreateMetadata{Title: "notes", MimeType: "text/plain"},
		CreateContent{Reader: strings.NewReader("abc"), Size: 3, OriginalFilename: "notes.txt"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, compensationCtxErr)
}

func TestDocumentService_Read(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	mDocs := new(repoMocks.MockDocumentRepository)
	mAudits := new(repoMocks.MockAuditRepository)

	mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(&model.Document{ID: "doc-1", OwnerID: "owner-1"}, nil)
	mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-2").Return(nil, repository.ErrNotFound)
	mDocs.On("FindByIDAndOwner", mock.Anything, "doc-2", "owner-1").Return(nil, errors.New("db down"))

	svc := newTestService(mStore, mDocs, mAudits)

	doc, err := svc.Read(context.Background(), "owner-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)

	_, err = svc.Read(context.Background(), "owner-2", "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Read(context.Background(), "owner-1", "doc-2")
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	_, err = svc.Read(context.Background(), "owner-1", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentService_List(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		pageSize  int
		wantQuery repository.PageQuery
		total     int
		wantPages int
	}{
		{name: "explicit page", page: 2, pageSize: 10, wantQuery: repository.PageQuery{Page: 2, PageSize: 10}, total: 45, wantPages: 5},
		{name: "defaults", page: 0, pageSize: 0, wantQuery: repository.PageQuery{Page: 1, PageSize: 20}, total: 0, wantPages: 0},
		{name: "page size clamped", page: 1, pageSize: 500, wantQuery: repository.PageQuery{Page: 1, PageSize: 100}, total: 101, wantPages: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mDocs := new(repoMocks.MockDocumentRepository)
			mDocs.On("ListByOwner", mock.Anything, "owner-1", tt.wantQuery).
				Return(&repository.PageResult[model.Document]{Items: []model.Document{{ID: "a"}}, Total: tt.total}, nil)

			svc := newTestService(new(storeMocks.MockStorage), mDocs, new(repoMocks.MockAuditRepository))
			res, err := svc.List(context.Background(), "owner-1", tt.page, tt.pageSize)

			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery.Page, res.Page)
			assert.Equal(t, tt.wantQuery.PageSize, res.PageSize)
			assert.Equal(t, tt.total, res.Total)
			assert.Equal(t, tt.wantPages, res.TotalPages)
			assert.Len(t, res.Items, 1)
			mDocs.AssertExpectations(t)
		})
	}
}

// trackingReader records whether Close was called.
type trackingReader struct {
	io.Reader
	closed bool
}

func (r *trackingReader) Close() error {
	r.closed = true
	return nil
}

func TestDocumentService_Download(t *testing.T) {
	size := int64(11)

	tests := []struct {
		name            string
		doc             *model.Document
		stat            *storage.ObjectStat
		statErr         error
		wantContentType string
		wantLength      *int64
		wantFilename    string
	}{
		{
			name:            "stat content type wins",
			doc:             &model.Document{ID: "doc-1", Bucket: "docs", ObjectKey: "key-1", Title: "report.pdf", MimeType: "application/pdf"},
			stat:            &storage.ObjectStat{Size: 11, ContentType: "application/x-pdf"},
			wantContentType: "application/x-pdf",
			wantLength:      &size,
			wantFilename:    "report.pdf",
		},
		{
			name:            "stat failure falls back to stored mime type",
			doc:             &model.Document{ID: "doc-1", Bucket: "docs", ObjectKey: "key-1", Title: "report.pdf", MimeType: "application/pdf"},
			statErr:         errors.New("stat failed"),
			wantContentType: "application/pdf",
			wantFilename:    "report.pdf",
		},
		{
			name:            "no stat and no mime type",
			doc:             &model.Document{ID: "doc-1", Bucket: "docs", ObjectKey: "key-1"},
			wantContentType: DefaultContentType,
			wantFilename:    "key-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mDocs := new(repoMocks.MockDocumentRepository)

			body := &trackingReader{Reader: strings.NewReader("hello world")}
			mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(tt.doc, nil)
			if tt.stat != nil {
				mStore.On("Stat", mock.Anything, "docs", "key-1").Return(tt.stat, nil)
			} else {
				mStore.On("Stat", mock.Anything, "docs", "key-1").Return(nil, tt.statErr)
			}
			mStore.On("Download", mock.Anything, "docs", "key-1").Return(body, nil)

			svc := newTestService(mStore, mDocs, new(repoMocks.MockAuditRepository))
			dl, err := svc.Download(context.Background(), "owner-1", "doc-1")
			require.NoError(t, err)

			assert.Equal(t, tt.wantContentType, dl.ContentType)
			assert.Equal(t, tt.wantLength, dl.ContentLength)
			assert.Equal(t, tt.wantFilename, dl.Filename)

			got, err := io.ReadAll(dl.Stream)
			require.NoError(t, err)
			assert.Equal(t, "hello world", string(got))
			require.NoError(t, dl.Stream.Close())
			assert.True(t, body.closed)
		})
	}
}

func TestDocumentService_Download_Errors(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	mDocs := new(repoMocks.MockDocumentRepository)

	mDocs.On("FindByIDAndOwner", mock.Anything, "missing", "owner-1").Return(nil, repository.ErrNotFound)
	mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(&model.Document{ID: "doc-1", Bucket: "docs", ObjectKey: "key-1"}, nil)
	mStore.On("Stat", mock.Anything, "docs", "key-1").Return(nil, nil)
	mStore.On("Download", mock.Anything, "docs", "key-1").Return(nil, errors.New("connection refused"))

	svc := newTestService(mStore, mDocs, new(repoMocks.MockAuditRepository))

	_, err := svc.Download(context.Background(), "owner-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	mStore.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, "missing")

	_, err = svc.Download(context.Background(), "owner-1", "doc-1")
	require.Error(t, err)
	assert.Equal(t, KindStorage, KindOf(err))
}

func TestDocumentService_CheckIn(t *testing.T) {
	current := func() *model.Document {
		return &model.Document{ID: "doc-1", OwnerID: "owner-1", Bucket: "docs", ObjectKey: "key-1", Version: 3, CategoryCode: strPtr("DRAFT")}
	}
	wantFields := model.CheckInFields{CategoryCode: "APPROVED", CheckedInAt: testNow, CheckedInBy: "owner-1", UpdatedAt: testNow}

	tests := []struct {
		name       string
		req        CheckInRequest
		setupMocks func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository)
		wantKind   ErrorKind
		wantAudit  bool
	}{
		{
			name: "success",
			req:  CheckInRequest{CategoryCode: "APPROVED", Version: 3},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				updated := current()
				updated.Version = 4
				updated.CategoryCode = strPtr("APPROVED")
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(current(), nil).Once()
				mDocs.On("UpdateCheckIn", mock.Anything, "doc-1", int64(3), wantFields).Return(int64(1), nil)
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(updated, nil).Once()
				mAudits.On("Append", mock.Anything, mock.MatchedBy(func(a *model.DocumentAudit) bool {
					return a.Type == model.AuditTypeCheckIn && a.DocumentID == "doc-1" && a.By == "owner-1" &&
						a.Payload["oldCategoryCode"] == "DRAFT" && a.Payload["newCategoryCode"] == "APPROVED"
				})).Return(nil)
			},
			wantAudit: true,
		},
		{
			name: "audit failure does not fail the check-in",
			req:  CheckInRequest{CategoryCode: "APPROVED", Version: 3},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				updated := current()
				updated.Version = 4
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(current(), nil).Once()
				mDocs.On("UpdateCheckIn", mock.Anything, "doc-1", int64(3), wantFields).Return(int64(1), nil)
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(updated, nil).Once()
				mAudits.On("Append", mock.Anything, mock.Anything).Return(errors.New("audit table locked"))
			},
			wantAudit: true,
		},
		{
			name: "stale version is rejected before writing",
			req:  CheckInRequest{CategoryCode: "APPROVED", Version: 2},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(current(), nil)
			},
			wantKind: KindConflict,
		},
		{
			name: "lost race reports conflict",
			req:  CheckInRequest{CategoryCode: "APPROVED", Version: 3},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				moved := current()
				moved.Version = 4
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(current(), nil).Once()
				mDocs.On("UpdateCheckIn", mock.Anything, "doc-1", int64(3), wantFields).Return(int64(0), nil)
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(moved, nil).Once()
			},
			wantKind: KindConflict,
		},
		{
			name: "concurrent delete reports not found",
			req:  CheckInRequest{CategoryCode: "APPROVED", Version: 3},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(current(), nil).Once()
				mDocs.On("UpdateCheckIn", mock.Anything, "doc-1", int64(3), wantFields).Return(int64(0), nil)
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(nil, repository.ErrNotFound).Once()
			},
			wantKind: KindNotFound,
		},
		{
			name: "missing document",
			req:  CheckInRequest{CategoryCode: "APPROVED", Version: 3},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(nil, repository.ErrNotFound)
			},
			wantKind: KindNotFound,
		},
		{
			name:       "blank category",
			req:        CheckInRequest{CategoryCode: " ", Version: 3},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {},
			wantKind:   KindValidation,
		},
		{
			name: "write failure",
			req:  CheckInRequest{CategoryCode: "APPROVED", Version: 3},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(current(), nil).Once()
				mDocs.On("UpdateCheckIn", mock.Anything, "doc-1", int64(3), wantFields).Return(int64(0), errors.New("deadlock"))
			},
			wantKind: KindPersistenceFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mDocs := new(repoMocks.MockDocumentRepository)
			mAudits := new(repoMocks.MockAuditRepository)
			tt.setupMocks(mDocs, mAudits)

			svc := newTestService(new(storeMocks.MockStorage), mDocs, mAudits)
			doc, err := svc.CheckIn(context.Background(), "owner-1", "doc-1", tt.req)

			if tt.wantKind != KindNone {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				assert.Nil(t, doc)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(4), doc.Version)
			}
			if tt.wantAudit {
				mAudits.AssertNumberOfCalls(t, "Append", 1)
			} else {
				mAudits.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
			}
			mDocs.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Update(t *testing.T) {
	current := func() *model.Document {
		return &model.Document{ID: "doc-1", OwnerID: "owner-1", Title: "old", Tags: []string{"a"}, Version: 1}
	}

	tests := []struct {
		name       string
		req        UpdateRequest
		setupMocks func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository)
		wantKind   ErrorKind
	}{
		{
			name: "success",
			req:  UpdateRequest{Title: "new", Tags: []string{"b"}, Version: 1},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(current(), nil)
				mDocs.On("Save", mock.Anything, mock.MatchedBy(func(d *model.Document) bool {
					return d.Version == 1 && d.Title == "new" && d.UpdatedAt.Equal(testNow)
				})).Return(&model.Document{ID: "doc-1", OwnerID: "owner-1", Title: "new", Tags: []string{"b"}, Version: 2, UpdatedAt: testNow}, nil)
				mAudits.On("Append", mock.Anything, mock.MatchedBy(func(a *model.DocumentAudit) bool {
					return a.Type == model.AuditTypeUpdate && a.Payload["oldTitle"] == "old" && a.Payload["newTitle"] == "new"
				})).Return(nil)
			},
		},
		{
			name: "optimistic lock failure",
			req:  UpdateRequest{Title: "new", Tags: []string{}, Version: 0},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(current(), nil)
				mDocs.On("Save", mock.Anything, mock.Anything).Return(nil, repository.ErrOptimisticLock)
			},
			wantKind: KindConflict,
		},
		{
			name: "deleted between read and save",
			req:  UpdateRequest{Title: "new", Tags: []string{}, Version: 1},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(current(), nil)
				mDocs.On("Save", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)
			},
			wantKind: KindNotFound,
		},
		{
			name: "other owner",
			req:  UpdateRequest{Title: "new", Tags: []string{}, Version: 1},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {
				mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(nil, repository.ErrNotFound)
			},
			wantKind: KindNotFound,
		},
		{
			name:       "missing tags",
			req:        UpdateRequest{Title: "new", Version: 1},
			setupMocks: func(mDocs *repoMocks.MockDocumentRepository, mAudits *repoMocks.MockAuditRepository) {},
			wantKind:   KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mDocs := new(repoMocks.MockDocumentRepository)
			mAudits := new(repoMocks.MockAuditRepository)
			tt.setupMocks(mDocs, mAudits)

			svc := newTestService(new(storeMocks.MockStorage), mDocs, mAudits)
			doc, err := svc.Update(context.Background(), "owner-1", "doc-1", tt.req)

			if tt.wantKind != KindNone {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				mAudits.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(2), doc.Version)
			mAudits.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Delete(t *testing.T) {
	doc := func() *model.Document {
		return &model.Document{ID: "doc-1", OwnerID: "owner-1", Bucket: "docs", ObjectKey: "key-1", Version: 2}
	}

	t.Run("blob before metadata", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mDocs := new(repoMocks.MockDocumentRepository)
		mAudits := new(repoMocks.MockAuditRepository)

		var order []string
		mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(doc(), nil)
		mStore.On("Delete", mock.Anything, "docs", "key-1").Run(func(mock.Arguments) { order = append(order, "blob") }).Return(nil)
		mDocs.On("Delete", mock.Anything, "doc-1").Run(func(mock.Arguments) { order = append(order, "metadata") }).Return(nil)
		mAudits.On("Append", mock.Anything, mock.MatchedBy(func(a *model.DocumentAudit) bool {
			return a.Type == model.AuditTypeDelete && a.DocumentID == "doc-1"
		})).Return(nil)

		svc := newTestService(mStore, mDocs, mAudits)
		require.NoError(t, svc.Delete(context.Background(), "owner-1", "doc-1"))

		assert.Equal(t, []string{"blob", "metadata"}, order)
		mAudits.AssertExpectations(t)
	})

	t.Run("blob failure keeps metadata", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mDocs := new(repoMocks.MockDocumentRepository)
		mAudits := new(repoMocks.MockAuditRepository)

		mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(doc(), nil)
		mStore.On("Delete", mock.Anything, "docs", "key-1").Return(errors.New("access denied"))

		svc := newTestService(mStore, mDocs, mAudits)
		err := svc.Delete(context.Background(), "owner-1", "doc-1")

		require.Error(t, err)
		assert.Equal(t, KindDeletionFailure, KindOf(err))
		mDocs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		mAudits.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("metadata failure after blob delete", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mDocs := new(repoMocks.MockDocumentRepository)
		mAudits := new(repoMocks.MockAuditRepository)

		mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(doc(), nil)
		mStore.On("Delete", mock.Anything, "docs", "key-1").Return(nil)
		mDocs.On("Delete", mock.Anything, "doc-1").Return(errors.New("db down"))

		svc := newTestService(mStore, mDocs, mAudits)
		err := svc.Delete(context.Background(), "owner-1", "doc-1")

		require.Error(t, err)
		assert.Equal(t, KindPersistenceFailure, KindOf(err))
		mAudits.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mDocs := new(repoMocks.MockDocumentRepository)

		mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-2").Return(nil, repository.ErrNotFound)

		svc := newTestService(mStore, mDocs, new(repoMocks.MockAuditRepository))
		err := svc.Delete(context.Background(), "owner-2", "doc-1")

		assert.ErrorIs(t, err, ErrNotFound)
		mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDocumentService_ListAudits(t *testing.T) {
	mDocs := new(repoMocks.MockDocumentRepository)
	mAudits := new(repoMocks.MockAuditRepository)

	entries := []model.DocumentAudit{{ID: "a2", DocumentID: "doc-1"}, {ID: "a1", DocumentID: "doc-1"}}
	mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(&model.Document{ID: "doc-1"}, nil)
	mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-2").Return(nil, repository.ErrNotFound)
	mAudits.On("ListByDocument", mock.Anything, "doc-1").Return(entries, nil)

	svc := newTestService(new(storeMocks.MockStorage), mDocs, mAudits)

	got, err := svc.ListAudits(context.Background(), "owner-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	_, err = svc.ListAudits(context.Background(), "owner-2", "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)
	mAudits.AssertNumberOfCalls(t, "ListByDocument", 1)
}

func TestDocumentService_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	mStore := new(storeMocks.MockStorage)
	mDocs := new(repoMocks.MockDocumentRepository)
	mAudits := new(repoMocks.MockAuditRepository)

	updated := &model.Document{ID: "doc-1", OwnerID: "owner-1", Version: 1}
	mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(&model.Document{ID: "doc-1", OwnerID: "owner-1"}, nil).Once()
	mDocs.On("UpdateCheckIn", mock.Anything, "doc-1", int64(0), mock.Anything).Return(int64(1), nil)
	mDocs.On("FindByIDAndOwner", mock.Anything, "doc-1", "owner-1").Return(updated, nil).Once()
	mDocs.On("FindByIDAndOwner", mock.Anything, "gone", "owner-1").Return(nil, repository.ErrNotFound)
	mAudits.On("Append", mock.Anything, mock.Anything).Return(errors.New("audit down"))

	opts := testOptions()
	opts.Metrics = metrics
	svc := NewDocumentService(mStore, mDocs, mAudits, opts)

	_, err = svc.CheckIn(context.Background(), "owner-1", "doc-1", CheckInRequest{CategoryCode: "APPROVED", Version: 0})
	require.NoError(t, err)
	_, err = svc.Read(context.Background(), "owner-1", "gone")
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operations.WithLabelValues(opCheckIn, "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operations.WithLabelValues(opRead, string(KindNotFound))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.bestEffortFailures.WithLabelValues(callAudit)))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{ErrNotFound, KindNotFound},
		{ErrConflict, KindConflict},
		{invalid(errors.New("title: cannot be blank")), KindValidation},
		{ErrUploadFailed, KindUploadFailure},
		{ErrPersistenceFailed, KindPersistenceFailure},
		{ErrDeletionFailed, KindDeletionFailure},
		{ErrStorage, KindStorage},
		{&storage.Error{Op: "stat", Bucket: "b", Key: "k", Err: errors.New("x")}, KindStorage},
		{errors.Join(ErrUploadFailed, &storage.Error{Op: "upload", Err: errors.New("x")}), KindUploadFailure},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}
