package outbox

import (
	"context"
	"time"

	"github.com/mlukins/cellar/internal/client/models"
)

// Status is the drain lifecycle state of an outbox entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in-flight"
	StatusSynced   Status = "synced"
	StatusFailed   Status = "failed"
)

// MaxRetries is the attempt ceiling. An entry that has failed this many
// times is parked and surfaced via FailedCount/LastError instead of being
// retried forever.
const MaxRetries = 3

// Entry is one pending write operation awaiting replay against the backend.
type Entry struct {
	Seq        int64
	OpID       string
	Kind       models.MutationKind
	EntityType models.EntityType
	Payload    map[string]any
	CreatedAt  time.Time
	Status     Status
	LastError  string
	RetryCount int
}

// EntityID returns the id of the entity the entry targets. Every payload
// carries its entity id under "id".
func (e Entry) EntityID() string {
	s, _ := e.Payload["id"].(string)
	return s
}

// Repository is the append-only durable log of pending mutations. Only the
// service facade appends and only the drain engine transitions or removes
// entries.
type Repository interface {
	// Append assigns the next sequence atomically and returns the
	// client-generated operation id used for server-side de-duplication.
	Append(ctx context.Context, kind models.MutationKind, entityType models.EntityType, payload map[string]any) (string, error)

	// ListPending returns the entries still eligible for replay, in
	// ascending sequence order: pending, failed below the retry ceiling,
	// and in-flight rows left behind by a crash.
	ListPending(ctx context.Context) ([]Entry, error)

	// MarkStatus transitions an entry's status.
	MarkStatus(ctx context.Context, seq int64, status Status) error

	// MarkFailed records a failed attempt: increments the persisted retry
	// counter, stores the cause, sets status failed. Returns the new count.
	MarkFailed(ctx context.Context, seq int64, cause string) (int, error)

	// Park records a permanent failure: status failed, cause stored, retry
	// counter forced to the ceiling so the entry is never picked up again.
	// Used for server rejections, which must not be retried.
	Park(ctx context.Context, seq int64, cause string) error

	// Remove deletes an entry after it reached synced.
	Remove(ctx context.Context, seq int64) error

	// RemoveSynced deletes any entry left in synced state, sweeping up
	// rows a crashed pass did not get to remove individually.
	RemoveSynced(ctx context.Context) error

	// ResolveReferences durably rewrites tempID to realID in the id and
	// foreign-key fields of every non-terminal payload, so reconciliation
	// survives a restart between the insert syncing and its dependents.
	ResolveReferences(ctx context.Context, tempID, realID string) error

	// PurgeEntity removes every non-terminal entry targeting the given
	// entity id. Used when a never-synced insert is deleted locally: from
	// the server's point of view the record never existed.
	PurgeEntity(ctx context.Context, entityID string) error

	// PendingCount counts entries still awaiting successful replay,
	// excluding exhausted ones.
	PendingCount(ctx context.Context) (int, error)

	// FailedCount counts entries parked at the retry ceiling.
	FailedCount(ctx context.Context) (int, error)

	// LastError returns the most recent recorded failure cause, or "".
	LastError(ctx context.Context) (string, error)
}
