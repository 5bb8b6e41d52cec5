// Package remote defines the contract to the backend, the only place
// network I/O happens, together with the error taxonomy the rest of the
// engine dispatches on.
package remote

import (
	"context"
	"errors"

	"github.com/mlukins/cellar/internal/client/models"
)

var (
	// ErrUnreachable is the network/transport failure class. It is the only
	// error that triggers outbox fallback and drain retries.
	ErrUnreachable = errors.New("server unreachable")

	// ErrRejected means the server received and declined the operation.
	// Rejections propagate to the caller immediately and are never queued.
	ErrRejected = errors.New("rejected by server")

	// ErrConflict means the target no longer exists on the server, e.g. a
	// delete replayed after the record is already gone. The drain treats it
	// as success.
	ErrConflict = errors.New("remote record gone")
)

// Client is the structured-data half of the backend contract. Every call is
// expected to complete or fail within the client's configured timeout.
type Client interface {
	// Create inserts a record and returns the authoritative copy with the
	// server-assigned id and timestamps. opID is the idempotency key: a
	// replayed create with the same opID must not produce a duplicate.
	Create(ctx context.Context, entityType models.EntityType, fields map[string]any, opID string) (*models.Record, error)

	// Update patches the given fields and returns the authoritative record.
	Update(ctx context.Context, entityType models.EntityType, id string, fields map[string]any, opID string) (*models.Record, error)

	// Delete removes a record.
	Delete(ctx context.Context, entityType models.EntityType, id string, opID string) error

	// List returns all records of a kind, for opportunistic local refresh.
	List(ctx context.Context, entityType models.EntityType) ([]models.Record, error)

	// Ping probes reachability.
	Ping(ctx context.Context) error

	Close() error
}

// BinaryStore is the photo half of the backend contract: raw bytes in, a
// stable storage path out.
type BinaryStore interface {
	// Upload stores the payload in the bucket under a newly generated
	// permanent path and returns that path.
	Upload(ctx context.Context, bucket string, payload []byte, mimeType string) (string, error)

	// ResolveURL turns a storage path into a fetchable (signed) URL.
	ResolveURL(ctx context.Context, bucket, path string) (string, error)
}
