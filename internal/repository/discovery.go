// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
package repository

import (
	"context"

	"simodapi/internal/model"
)

// DiscoveryRepository defines data access for discovery requests using SQL queries only.
// No business logic here — strictly persistence operations.
type DiscoveryRepository interface {
	// Create inserts a new discovery record.
	// The caller should provide required fields (e.g., ID, CreatedAt) according to the database schema defaults.
	// Returns the stored discovery (may include values set by the DB).
	Create(ctx context.Context, d *model.Discovery) (*model.Discovery, error)

	// FindByID returns a discovery by its ID.
	FindByID(ctx context.Context, id string) (*model.Discovery, error)

	// List returns a paginated list of discoveries and total rows count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Discovery], error)

	// UpdateStatus persists a lifecycle transition together with the fields a
	// transition may set (archive path on success, error message on failure).
	UpdateStatus(ctx context.Context, d *model.Discovery) error

	// Delete removes a discovery by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
