package store

import (
	"context"
	"errors"

	"github.com/mlukins/cellar/internal/client/models"
)

var (
	// ErrNotFound is returned when no row exists under the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrCorrupted is returned when a stored row cannot be decoded. Callers
	// treat it as a cache miss and refetch from the backend.
	ErrCorrupted = errors.New("local record corrupted")
)

// Repository is the local mirror of the remote tables. It serves every read
// while the backend is unreachable and is the target of drain write-backs.
type Repository interface {
	// Get returns the record stored under (entityType, id).
	Get(ctx context.Context, entityType models.EntityType, id string) (*models.Record, error)

	// Put inserts or replaces the record under its id. A repeated Put with
	// identical content is a no-op in effect.
	Put(ctx context.Context, entityType models.EntityType, rec models.Record) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, entityType models.EntityType, id string) error

	// Query returns all records of a kind matching pred, in unspecified
	// order. A nil pred matches everything. Corrupted rows are skipped.
	Query(ctx context.Context, entityType models.EntityType, pred func(models.Record) bool) ([]models.Record, error)

	// Rekey atomically moves a row from oldID to newID, replacing its
	// content with the authoritative record, and rewrites every registered
	// foreign-key reference to oldID in dependent tables. A concurrent
	// reader observes either the old row or the new one, never neither.
	Rekey(ctx context.Context, entityType models.EntityType, oldID string, authoritative models.Record) error

	// SetField updates a single field of an existing record in place.
	SetField(ctx context.Context, entityType models.EntityType, id, field string, value any) error
}
