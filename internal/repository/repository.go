package repository

import "errors"

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrOptimisticLock is returned by a versioned save whose expected version no longer matches the stored one.
	ErrOptimisticLock = errors.New("optimistic lock failure")
	// ErrDuplicate is returned when a unique constraint rejects the write.
	ErrDuplicate = errors.New("duplicate record")
)

// PageQuery holds page/page-size pagination parameters.
type PageQuery struct {
	Page     int
	PageSize int
}

// Offset returns the number of rows to skip for this page.
func (q PageQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
