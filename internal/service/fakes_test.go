package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"dropstack/internal/config"
	"dropstack/internal/model"
	"dropstack/internal/repository"
	"dropstack/internal/storage"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sequentialIDs(prefix string) func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&n, 1))
	}
}

func testOptions() Options {
	return Options{
		DefaultBucket: "docs",
		Timeouts: config.TimeoutConfig{
			ObjectStore:  time.Second,
			Metadata:     time.Second,
			Audit:        time.Second,
			Compensation: time.Second,
		},
		Pagination:    config.PaginationConfig{DefaultPageSize: 20, MaxPageSize: 100},
		MaxUploadSize: 1 << 20,
		Logger:        zerolog.Nop(),
		Now:           func() time.Time { return testNow },
		NewID:         sequentialIDs("id"),
	}
}

func newTestService(store storage.Storage, docs repository.DocumentRepository, audits repository.AuditRepository) DocumentService {
	return NewDocumentService(store, docs, audits, testOptions())
}

// memDocuments is an in-memory DocumentRepository with the same conditional-write semantics as the postgres one.
type memDocuments struct {
	mu   sync.Mutex
	rows map[string]model.Document
}

func newMemDocuments() *memDocuments {
	return &memDocuments{rows: map[string]model.Document{}}
}

func (m *memDocuments) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[doc.ID]; ok {
		return nil, repository.ErrDuplicate
	}
	row := *doc
	row.Version = 0
	m.rows[row.ID] = row
	out := row
	return &out, nil
}

func (m *memDocuments) FindByIDAndOwner(_ context.Context, id, ownerID string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (m *memDocuments) ListByOwner(_ context.Context, ownerID string, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Document
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			all = append(all, row)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	res := &repository.PageResult[model.Document]{Total: len(all), Items: []model.Document{}}
	start := pq.Offset()
	if start < len(all) {
		end := start + pq.PageSize
		if end > len(all) {
			end = len(all)
		}
		res.Items = all[start:end]
	}
	return res, nil
}

func (m *memDocuments) Save(_ context.Context, doc *model.Document) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[doc.ID]
	if !ok || row.OwnerID != doc.OwnerID {
		return nil, repository.ErrNotFound
	}
	if row.Version != doc.Version {
		return nil, repository.ErrOptimisticLock
	}
	row.Title = doc.Title
	row.Tags = doc.Tags
	row.UpdatedAt = doc.UpdatedAt
	row.Version++
	m.rows[row.ID] = row
	return &row, nil
}

func (m *memDocuments) UpdateCheckIn(_ context.Context, id string, expectedVersion int64, f model.CheckInFields) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Version != expectedVersion {
		return 0, nil
	}
	code, by, at := f.CategoryCode, f.CheckedInBy, f.CheckedInAt
	row.CategoryCode = &code
	row.CheckedInBy = &by
	row.CheckedInAt = &at
	row.UpdatedAt = f.UpdatedAt
	row.Version++
	m.rows[id] = row
	return 1, nil
}

func (m *memDocuments) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// memAudits is an in-memory AuditRepository.
type memAudits struct {
	mu      sync.Mutex
	entries []model.DocumentAudit
}

func (m *memAudits) Append(_ context.Context, a *model.DocumentAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *a)
	return nil
}

func (m *memAudits) ListByDocument(_ context.Context, documentID string) ([]model.DocumentAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.DocumentAudit{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].DocumentID == documentID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memAudits) all() []model.DocumentAudit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DocumentAudit(nil), m.entries...)
}
