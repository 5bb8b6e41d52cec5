package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mlukins/cellar/internal/client/models"
	"github.com/mlukins/cellar/internal/dbx"
)

// SQLiteRepository implements Repository over the mutation_outbox table.
// The seq column is AUTOINCREMENT, so sequence assignment is atomic under
// concurrent appends and never reuses a value.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, kind models.MutationKind, entityType models.EntityType, payload map[string]any) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown mutation kind %q", kind)
	}
	if !entityType.Valid() {
		return "", models.ErrUnknownEntityType(entityType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	opID := uuid.NewString()
	query := `insert into mutation_outbox (op_id, kind, entity_type, payload, created_at, status)
			values (?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query, opID, string(kind), string(entityType),
		string(body), time.Now().UTC().Format(time.RFC3339Nano), string(StatusPending))
	if err != nil {
		return "", fmt.Errorf("failed to append outbox entry: %w", err)
	}
	return opID, nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]Entry, error) {
	query := `select seq, op_id, kind, entity_type, payload, created_at, status, last_error, retry_count
			from mutation_outbox
			where status != ? and retry_count < ?
			order by seq asc`
	rows, err := r.db.QueryContext(ctx, query, string(StatusSynced), MaxRetries)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to select pending entries: %w", err)
	}
	defer rows.Close()

	var pending []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *SQLiteRepository) MarkStatus(ctx context.Context, seq int64, status Status) error {
	query := `update mutation_outbox set status=? where seq=?`
	res, err := r.db.ExecContext(ctx, query, string(status), seq)
	if err != nil {
		return fmt.Errorf("failed to mark entry %d: %w", seq, err)
	}
	return requireOneRow(res, seq)
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, seq int64, cause string) (int, error) {
	query := `update mutation_outbox set status=?, last_error=?, retry_count=retry_count+1 where seq=?`
	res, err := r.db.ExecContext(ctx, query, string(StatusFailed), cause, seq)
	if err != nil {
		return 0, fmt.Errorf("failed to mark entry %d failed: %w", seq, err)
	}
	if err := requireOneRow(res, seq); err != nil {
		return 0, err
	}

	var count int
	row := r.db.QueryRowContext(ctx, `select retry_count from mutation_outbox where seq=?`, seq)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) Park(ctx context.Context, seq int64, cause string) error {
	query := `update mutation_outbox set status=?, last_error=?, retry_count=? where seq=?`
	res, err := r.db.ExecContext(ctx, query, string(StatusFailed), cause, MaxRetries, seq)
	if err != nil {
		return fmt.Errorf("failed to park entry %d: %w", seq, err)
	}
	return requireOneRow(res, seq)
}

func (r *SQLiteRepository) Remove(ctx context.Context, seq int64) error {
	if _, err := r.db.ExecContext(ctx, `delete from mutation_outbox where seq=?`, seq); err != nil {
		return fmt.Errorf("failed to remove entry %d: %w", seq, err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveSynced(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `delete from mutation_outbox where status=?`, string(StatusSynced)); err != nil {
		return fmt.Errorf("failed to remove synced entries: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ResolveReferences(ctx context.Context, tempID, realID string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `select seq, op_id, kind, entity_type, payload, created_at, status, last_error, retry_count
				from mutation_outbox where status != ?`
		rows, err := tx.QueryContext(ctx, query, string(StatusSynced))
		if err != nil {
			return fmt.Errorf("failed to select entries: %w", err)
		}

		var dirty []Entry
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				rows.Close()
				return err
			}
			if rewritePayload(&e, tempID, realID) {
				dirty = append(dirty, e)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, e := range dirty {
			body, err := json.Marshal(e.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode payload: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `update mutation_outbox set payload=? where seq=?`, string(body), e.Seq); err != nil {
				return fmt.Errorf("failed to rewrite entry %d: %w", e.Seq, err)
			}
		}
		return nil
	})
}

// rewritePayload swaps tempID for realID in the entity id and the registered
// foreign-key fields of the entry's kind. Reports whether anything changed.
func rewritePayload(e *Entry, tempID, realID string) bool {
	fields := append([]string{"id"}, models.ForeignKeys(e.EntityType)...)
	changed := false
	for _, f := range fields {
		if s, ok := e.Payload[f].(string); ok && s == tempID {
			e.Payload[f] = realID
			changed = true
		}
	}
	return changed
}

func (r *SQLiteRepository) PurgeEntity(ctx context.Context, entityID string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `select seq, op_id, kind, entity_type, payload, created_at, status, last_error, retry_count
				from mutation_outbox where status != ?`
		rows, err := tx.QueryContext(ctx, query, string(StatusSynced))
		if err != nil {
			return fmt.Errorf("failed to select entries: %w", err)
		}

		var doomed []int64
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				rows.Close()
				return err
			}
			if e.EntityID() == entityID {
				doomed = append(doomed, e.Seq)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, seq := range doomed {
			if _, err := tx.ExecContext(ctx, `delete from mutation_outbox where seq=?`, seq); err != nil {
				return fmt.Errorf("failed to purge entry %d: %w", seq, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) PendingCount(ctx context.Context) (int, error) {
	return r.count(ctx, `select count(*) from mutation_outbox where status != ? and retry_count < ?`,
		string(StatusSynced), MaxRetries)
}

func (r *SQLiteRepository) FailedCount(ctx context.Context) (int, error) {
	return r.count(ctx, `select count(*) from mutation_outbox where status = ? and retry_count >= ?`,
		string(StatusFailed), MaxRetries)
}

func (r *SQLiteRepository) LastError(ctx context.Context) (string, error) {
	row := r.db.QueryRowContext(ctx,
		`select last_error from mutation_outbox where last_error != '' order by seq desc limit 1`)
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
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func requireOneRow(res sql.Result, seq int64) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("entry %d not found", seq)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e               Entry
		kind, et        string
		payload, status string
		created         string
	)
	if err := row.Scan(&e.Seq, &e.OpID, &kind, &et, &payload, &created, &status, &e.LastError, &e.RetryCount); err != nil {
		return Entry{}, err
	}
	e.Kind = models.MutationKind(kind)
	e.EntityType = models.EntityType(et)
	e.Status = Status(status)
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return Entry{}, fmt.Errorf("failed to decode payload of entry %d: %w", e.Seq, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}
