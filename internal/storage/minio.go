package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dropstack/internal/config"
)

// minioStorage implements the Storage interface using an S3-compatible backend (MinIO, AWS S3, etc.).
// It is safe for concurrent use by multiple goroutines.
type minioStorage struct {
	client *minio.Client
}

// NewMinIO creates a new S3-compatible storage client backed by MinIO.
// It validates connectivity and ensures the default bucket exists (creates it if missing).
func NewMinIO(cfg config.MinIOConfig) (Storage, error) {
	if err := validateMinIOConfig(cfg); err != nil {
		return nil, err
	}

	base, err := minio.DefaultTransport(cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("create minio transport: %w", err)
	}

	// Object store calls show up as child spans of the coordinator operation.
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: otelhttp.NewTransport(base),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &minioStorage{client: cli}, nil
}

func validateMinIOConfig(cfg config.MinIOConfig) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("minio bucket is required")
	}
	return nil
}

// isNotFound reports whether err is an S3 "no such key/bucket" response.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchObject", "NoSuchBucket":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

// Upload streams the object using the declared size (no local disk).
func (m *minioStorage) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if r == nil {
		return &Error{Op: "upload", Bucket: bucket, Key: key, Err: errors.New("reader is nil")}
	}
	_, err := m.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return &Error{Op: "upload", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

// Download returns the object content as a ReadCloser.
// The object is stat'ed first so a missing key fails here instead of on the first Read.
func (m *minioStorage) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &Error{Op: "download", Bucket: bucket, Key: key, Err: err}
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, &Error{Op: "download", Bucket: bucket, Key: key, Err: err}
	}
	return obj, nil
}

// Delete removes an object. Missing objects are treated as already deleted.
func (m *minioStorage) Delete(ctx context.Context, bucket, key string) error {
	err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return &Error{Op: "delete", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

// Stat returns nil, nil when the object does not exist.
func (m *minioStorage) Stat(ctx context.Context, bucket, key string) (*ObjectStat, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, &Error{Op: "stat", Bucket: bucket, Key: key, Err: err}
	}
	return &ObjectStat{
		Size:        info.Size,
		ETag:        info.ETag,
		ContentType: info.ContentType,
	}, nil
}

// SetTags replaces the object tag set.
func (m *minioStorage) SetTags(ctx context.Context, bucket, key string, tagMap map[string]string) error {
	t, err := tags.NewTags(tagMap, true)
	if err != nil {
		return &Error{Op: "set tags", Bucket: bucket, Key: key, Err: err}
	}
	if err := m.client.PutObjectTagging(ctx, bucket, key, t, minio.PutObjectTaggingOptions{}); err != nil {
		return &Error{Op: "set tags", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}
