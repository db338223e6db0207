package model

import (
	"io"
	"time"
)

// Document is the metadata record of a stored blob.
// It carries no persistence tags so it can move freely between the HTTP, service and storage layers.
type Document struct {
	ID           string     `json:"Id"`
	OwnerID      string     `json:"-"`
	ObjectKey    string     `json:"ObjectKey"`
	Bucket       string     `json:"Bucket"`
	ETag         string     `json:"ETag,omitempty"`
	Title        string     `json:"Title"`
	MimeType     string     `json:"MimeType"`
	Size         int64      `json:"Size"`
	Tags         []string   `json:"Tags"`
	CategoryCode *string    `json:"CategoryCode"`
	CreatedAt    time.Time  `json:"CreatedAt"`
	UpdatedAt    time.Time  `json:"UpdatedAt"`
	CheckedInAt  *time.Time `json:"CheckedInAt,omitempty"`
	CheckedInBy  *string    `json:"CheckedInBy,omitempty"`
	Version      int64      `json:"Version"`
}

// CheckInFields is the field subset written by a conditional check-in.
type CheckInFields struct {
	CategoryCode string
	CheckedInAt  time.Time
	CheckedInBy  string
	UpdatedAt    time.Time
}

// Audit types.
const (
	AuditTypeCheckIn = "CHECKIN"
	AuditTypeUpdate  = "UPDATE"
	AuditTypeDelete  = "DELETE"
)

// DocumentAudit is an append-only entry describing a state change on a document.
type DocumentAudit struct {
	ID         string         `json:"Id"`
	DocumentID string         `json:"DocumentId"`
	Type       string         `json:"Type"`
	At         time.Time      `json:"At"`
	By         string         `json:"By"`
	Payload    map[string]any `json:"Payload"`
}

// DocumentContent is a resolved download: the caller owns Stream and must close it.
// ContentLength is nil when the object store did not report a size.
type DocumentContent struct {
	Stream        io.ReadCloser
	ContentType   string
	ContentLength *int64
	Filename      string
}
