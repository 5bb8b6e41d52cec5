package photos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mlukins/cellar/internal/client/models"
)

// SQLiteRepository implements Repository over the photo_outbox table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, ownerType models.EntityType, ownerID string, payload []byte, mimeType, bucket string) (string, error) {
	if !ownerType.Valid() {
		return "", models.ErrUnknownEntityType(ownerType)
	}
	if len(payload) == 0 {
		return "", errors.New("empty photo payload")
	}

	opID := uuid.NewString()
	query := `insert into photo_outbox (op_id, owner_type, owner_id, payload, mime_type, bucket, created_at, status)
			values (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, opID, string(ownerType), ownerID, payload, mimeType, bucket,
		time.Now().UTC().Format(time.RFC3339Nano), string(StatusPending))
	if err != nil {
		return "", fmt.Errorf("failed to append photo entry: %w", err)
	}
	return opID, nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]Entry, error) {
	query := `select seq, op_id, owner_type, owner_id, payload, mime_type, bucket, created_at, status, last_error, retry_count, remote_path
			from photo_outbox
			where status != ? and retry_count < ?
			order by seq asc`
	rows, err := r.db.QueryContext(ctx, query, string(StatusUploaded), MaxRetries)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to select pending photos: %w", err)
	}
	defer rows.Close()

	var pending []Entry
	for rows.Next() {
		var (
			e                   Entry
			ot, status, created string
		)
		if err := rows.Scan(&e.Seq, &e.OpID, &ot, &e.OwnerID, &e.Payload, &e.MimeType, &e.Bucket,
			&created, &status, &e.LastError, &e.RetryCount, &e.RemotePath); err != nil {
			return nil, err
		}
		e.OwnerType = models.EntityType(ot)
		e.Status = Status(status)
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		pending = append(pending, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *SQLiteRepository) MarkStatus(ctx context.Context, seq int64, status Status) error {
	res, err := r.db.ExecContext(ctx, `update photo_outbox set status=? where seq=?`, string(status), seq)
	if err != nil {
		return fmt.Errorf("failed to mark photo %d: %w", seq, err)
	}
	return requireOneRow(res, seq)
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, seq int64, cause string) (int, error) {
	query := `update photo_outbox set status=?, last_error=?, retry_count=retry_count+1 where seq=?`
	res, err := r.db.ExecContext(ctx, query, string(StatusFailed), cause, seq)
	if err != nil {
		return 0, fmt.Errorf("failed to mark photo %d failed: %w", seq, err)
	}
	if err := requireOneRow(res, seq); err != nil {
		return 0, err
	}

	var count int
	row := r.db.QueryRowContext(ctx, `select retry_count from photo_outbox where seq=?`, seq)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) Park(ctx context.Context, seq int64, cause string) error {
	query := `update photo_outbox set status=?, last_error=?, retry_count=? where seq=?`
	res, err := r.db.ExecContext(ctx, query, string(StatusFailed), cause, MaxRetries, seq)
	if err != nil {
		return fmt.Errorf("failed to park photo %d: %w", seq, err)
	}
	return requireOneRow(res, seq)
}

func (r *SQLiteRepository) SetRemotePath(ctx context.Context, seq int64, path string) error {
	res, err := r.db.ExecContext(ctx, `update photo_outbox set remote_path=? where seq=?`, path, seq)
	if err != nil {
		return fmt.Errorf("failed to set remote path on photo %d: %w", seq, err)
	}
	return requireOneRow(res, seq)
}

func (r *SQLiteRepository) Remove(ctx context.Context, seq int64) error {
	if _, err := r.db.ExecContext(ctx, `delete from photo_outbox where seq=?`, seq); err != nil {
		return fmt.Errorf("failed to remove photo %d: %w", seq, err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveUploaded(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `delete from photo_outbox where status=?`, string(StatusUploaded)); err != nil {
		return fmt.Errorf("failed to remove uploaded photos: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Rehome(ctx context.Context, tempID, realID string) error {
	query := `update photo_outbox set owner_id=? where owner_id=? and status != ?`
	if _, err := r.db.ExecContext(ctx, query, realID, tempID, string(StatusUploaded)); err != nil {
		return fmt.Errorf("failed to rehome photos of %s: %w", tempID, err)
	}
	return nil
}

func (r *SQLiteRepository) PurgeOwner(ctx context.Context, ownerID string) error {
	query := `delete from photo_outbox where owner_id=? and status != ?`
	if _, err := r.db.ExecContext(ctx, query, ownerID, string(StatusUploaded)); err != nil {
		return fmt.Errorf("failed to purge photos of %s: %w", ownerID, err)
	}
	return nil
}

func (r *SQLiteRepository) PendingCount(ctx context.Context) (int, error) {
	return r.count(ctx, `select count(*) from photo_outbox where status != ? and retry_count < ?`,
		string(StatusUploaded), MaxRetries)
}

func (r *SQLiteRepository) FailedCount(ctx context.Context) (int, error) {
	return r.count(ctx, `select count(*) from photo_outbox where status = ? and retry_count >= ?`,
		string(StatusFailed), MaxRetries)
}

func (r *SQLiteRepository) LastError(ctx context.Context) (string, error) {
	row := r.db.QueryRowContext(ctx,
		`select last_error from photo_outbox where last_error != '' order by seq desc limit 1`)
	var cause string
	if err := row.Scan(&cause); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read last error: %w", err)
	}
	return cause, nil
}

func (r *SQLiteRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return n, nil
}

func requireOneRow(res sql.Result, seq int64) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("photo entry %d not found", seq)
	}
	return nil
}
