package service

import (
	"errors"

	"dropstack/internal/storage"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrConflict          = errors.New("document version conflict")
	ErrValidation        = errors.New("validation failed")
	ErrUploadFailed      = errors.New("could not upload document to bucket")
	ErrPersistenceFailed = errors.New("could not persist document metadata")
	ErrDeletionFailed    = errors.New("could not delete document from bucket")
	ErrStorage           = errors.New("object storage failure")
)

// ErrorKind is a stable, transport-neutral classification of a coordinator error.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindConflict           ErrorKind = "CONFLICT"
	KindValidation         ErrorKind = "VALIDATION"
	KindUploadFailure      ErrorKind = "UPLOAD_FAILURE"
	KindPersistenceFailure ErrorKind = "PERSISTENCE_FAILURE"
	KindDeletionFailure    ErrorKind = "DELETION_FAILURE"
	KindStorage            ErrorKind = "STORAGE"
	KindInternal           ErrorKind = "INTERNAL"
)

// KindOf classifies err. Protocol-specific kinds win over the generic storage kind,
// so an upload failure caused by a storage error reports KindUploadFailure.
func KindOf(err error) ErrorKind {
	var se *storage.Error
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUploadFailed):
		return KindUploadFailure
	case errors.Is(err, ErrPersistenceFailed):
		return KindPersistenceFailure
	case errors.Is(err, ErrDeletionFailed):
		return KindDeletionFailure
	case errors.Is(err, ErrStorage), errors.As(err, &se):
		return KindStorage
	default:
		return KindInternal
	}
}
