package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"dropstack/internal/storage"
)

type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, bucket, key, r, size, contentType)
	return args.Error(0)
}

func (m *MockStorage) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func (m *MockStorage) Stat(ctx context.Context, bucket, key string) (*storage.ObjectStat, error) {
	args := m.Called(ctx, bucket, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ObjectStat), args.Error(1)
}

func (m *MockStorage) SetTags(ctx context.Context, bucket, key string, tags map[string]string) error {
	args := m.Called(ctx, bucket, key, tags)
	return args.Error(0)
}
