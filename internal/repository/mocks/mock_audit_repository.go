package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dropstack/internal/model"
	"dropstack/internal/repository"
)

type MockAuditRepository struct {
	mock.Mock
}

var _ repository.AuditRepository = (*MockAuditRepository)(nil)

func (m *MockAuditRepository) Append(ctx context.Context, audit *model.DocumentAudit) error {
	args := m.Called(ctx, audit)
	return args.Error(0)
}

func (m *MockAuditRepository) ListByDocument(ctx context.Context, documentID string) ([]model.DocumentAudit, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DocumentAudit), args.Error(1)
}
