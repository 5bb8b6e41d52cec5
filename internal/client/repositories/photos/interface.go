package photos

import (
	"context"
	"time"

	"github.com/mlukins/cellar/internal/client/models"
)

// Status is the upload lifecycle state of a photo outbox entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusFailed    Status = "failed"
)

// MaxRetries is the upload attempt ceiling, matching the mutation outbox.
const MaxRetries = 3

// Entry is one binary attachment awaiting upload. Binaries get their own
// queue because their size, timeout and failure characteristics differ from
// structured field mutations, and an upload failure must never stall
// catalog sync.
type Entry struct {
	Seq        int64
	OpID       string
	OwnerType  models.EntityType
	OwnerID    string
	Payload    []byte
	MimeType   string
	Bucket     string
	CreatedAt  time.Time
	Status     Status
	LastError  string
	RetryCount int

	// RemotePath is set once the binary has landed in the bucket. A retry
	// that finds it non-empty skips the upload and only replays the
	// reference propagation.
	RemotePath string
}

// Repository is the durable photo upload log.
type Repository interface {
	// Append enqueues a binary for upload and returns its operation id.
	Append(ctx context.Context, ownerType models.EntityType, ownerID string, payload []byte, mimeType, bucket string) (string, error)

	// ListPending returns entries eligible for upload in sequence order.
	ListPending(ctx context.Context) ([]Entry, error)

	// MarkStatus transitions an entry's status.
	MarkStatus(ctx context.Context, seq int64, status Status) error

	// MarkFailed records a failed attempt and returns the new retry count.
	MarkFailed(ctx context.Context, seq int64, cause string) (int, error)

	// Park records a permanent failure: status failed, cause stored, retry
	// counter forced to the ceiling.
	Park(ctx context.Context, seq int64, cause string) error

	// SetRemotePath persists the permanent storage path after a successful
	// upload.
	SetRemotePath(ctx context.Context, seq int64, path string) error

	// Remove deletes an entry after it reached uploaded.
	Remove(ctx context.Context, seq int64) error

	// RemoveUploaded deletes any entry left in uploaded state.
	RemoveUploaded(ctx context.Context) error

	// Rehome rewrites the owner id of pending entries when the owning
	// insert reconciles from a temporary to a real id.
	Rehome(ctx context.Context, tempID, realID string) error

	// PurgeOwner removes pending entries whose owner was deleted before its
	// insert ever synced.
	PurgeOwner(ctx context.Context, ownerID string) error

	// PendingCount counts entries still awaiting upload, excluding
	// exhausted ones.
	PendingCount(ctx context.Context) (int, error)

	// FailedCount counts entries parked at the retry ceiling.
	FailedCount(ctx context.Context) (int, error)

	// LastError returns the most recent recorded failure cause, or "".
	LastError(ctx context.Context) (string, error)
}
