package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mlukins/cellar/internal/client/models"
	"github.com/mlukins/cellar/internal/dbx"
	"github.com/mlukins/cellar/internal/logging"
)

// SQLiteRepository implements Repository over the client SQLite database.
// Each entity kind lives in its own table, keyed by id, with the domain
// fields stored as one JSON column.
type SQLiteRepository struct {
	db  *sql.DB
	log logging.Logger
}

func NewSQLiteRepository(db *sql.DB, log logging.Logger) *SQLiteRepository {
	return &SQLiteRepository{db: db, log: log.With("component", "store")}
}

// tableFor maps an entity type to its table name. Entity types are a closed
// set, so this is also the guard against interpolating arbitrary strings
// into SQL.
func tableFor(t models.EntityType) (string, error) {
	if !t.Valid() {
		return "", models.ErrUnknownEntityType(t)
	}
	return string(t), nil
}

func (r *SQLiteRepository) Get(ctx context.Context, entityType models.EntityType, id string) (*models.Record, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`select id, fields, created_at, updated_at from %s where id=?`, table)
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if errors.Is(err, ErrCorrupted) {
		r.log.Warn(ctx, "corrupted local record, treating as miss", "entity_type", entityType, "id", id)
		return nil, ErrCorrupted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, entityType models.EntityType, rec models.Record) error {
	return putRecord(ctx, r.db, entityType, rec)
}

func putRecord(ctx context.Context, db dbx.DBTX, entityType models.EntityType, rec models.Record) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	query := fmt.Sprintf(`insert into %s (id, fields, created_at, updated_at)
			values (?, ?, ?, ?)
			on conflict(id) do update set fields = excluded.fields,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at
	`, table)
	_, err = db.ExecContext(ctx, query, rec.ID, string(fields),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, entityType models.EntityType, id string) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`delete from %s where id=?`, table)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Query(ctx context.Context, entityType models.EntityType, pred func(models.Record) bool) ([]models.Record, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`select id, fields, created_at, updated_at from %s`, table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		var (
			rec                      models.Record
			fields, created, updated string
		)
		if err := rows.Scan(&rec.ID, &fields, &created, &updated); err != nil {
			return nil, err
		}
		if err := decodeInto(&rec, fields, created, updated); err != nil {
			r.log.Warn(ctx, "skipping corrupted local record", "entity_type", entityType, "id", rec.ID)
			continue
		}
		if pred == nil || pred(rec) {
			result = append(result, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Rekey swaps a temporary id for the server-assigned one: the old row is
// deleted, the authoritative row inserted, and every registered foreign key
// pointing at oldID in dependent tables rewritten, all in one transaction.
func (r *SQLiteRepository) Rekey(ctx context.Context, entityType models.EntityType, oldID string, authoritative models.Record) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := fmt.Sprintf(`delete from %s where id=?`, table)
		if _, err := tx.ExecContext(ctx, query, oldID); err != nil {
			return fmt.Errorf("failed to remove old row: %w", err)
		}
		if err := putRecord(ctx, tx, entityType, authoritative); err != nil {
			return err
		}
		return rewriteReferences(ctx, tx, oldID, authoritative.ID)
	})
}

// rewriteReferences walks every table that declares foreign keys and points
// any reference to oldID at newID.
func rewriteReferences(ctx context.Context, tx dbx.DBTX, oldID, newID string) error {
	for _, t := range models.AllEntityTypes {
		fks := models.ForeignKeys(t)
		if len(fks) == 0 {
			continue
		}

		query := fmt.Sprintf(`select id, fields, created_at, updated_at from %s`, string(t))
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to scan %s for references: %w", t, err)
		}

		var dirty []models.Record
		for rows.Next() {
			var (
				rec                  models.Record
				fields, created, updated string
			)
			if err := rows.Scan(&rec.ID, &fields, &created, &updated); err != nil {
				rows.Close()
				return err
			}
			if err := decodeInto(&rec, fields, created, updated); err != nil {
				continue
			}
			changed := false
			for _, fk := range fks {
				if rec.StringField(fk) == oldID {
					rec.Fields[fk] = newID
					changed = true
				}
			}
			if changed {
				dirty = append(dirty, rec)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, rec := range dirty {
			if err := putRecord(ctx, tx, t, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *SQLiteRepository) SetField(ctx context.Context, entityType models.EntityType, id, field string, value any) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		table, err := tableFor(entityType)
		if err != nil {
			return err
		}

		query := fmt.Sprintf(`select id, fields, created_at, updated_at from %s where id=?`, table)
		rec, err := scanRecord(tx.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		rec.Fields[field] = value
		return putRecord(ctx, tx, entityType, *rec)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec                  models.Record
		fields, created, updated string
	)
	if err := row.Scan(&rec.ID, &fields, &created, &updated); err != nil {
		return nil, err
	}
	if err := decodeInto(&rec, fields, created, updated); err != nil {
		return nil, err
	}
	return &rec, nil
}

func decodeInto(rec *models.Record, fields, created, updated string) error {
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
