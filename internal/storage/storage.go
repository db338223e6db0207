package storage

import (
	"context"
	"fmt"
	"io"
)

// Package storage contains object store abstractions for S3-compatible backends.
// Implementations must avoid using local disk and rely on streaming I/O only.

// ObjectStat is the head information the object store reports for an object.
type ObjectStat struct {
	Size        int64
	ETag        string
	ContentType string
}

// Error wraps an object store transport failure with the operation and location.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Storage is the object store contract, addressed by bucket and key.
// Uploads are not idempotent: a retried Upload overwrites the object.
type Storage interface {
	// Upload streams size bytes from r into bucket/key.
	Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	// Download returns a streaming reader for bucket/key. The caller must close it.
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Delete removes bucket/key. A missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error
	// Stat returns the object's head information, or nil without error when the object does not exist.
	Stat(ctx context.Context, bucket, key string) (*ObjectStat, error)
	// SetTags replaces the object's tag set.
	SetTags(ctx context.Context, bucket, key string, tags map[string]string) error
}
