package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/mlukins/cellar/internal/client/models"
	"github.com/mlukins/cellar/internal/client/remote"
	"github.com/mlukins/cellar/internal/client/repositories/outbox"
	"github.com/mlukins/cellar/internal/client/repositories/photos"
	"github.com/mlukins/cellar/internal/client/repositories/store"
	"github.com/mlukins/cellar/internal/logging"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// fakeRemote is an in-memory stand-in for the backend. It assigns srv-N ids,
// de-duplicates creates by operation id, and can be switched unreachable or
// made to reject.
type fakeRemote struct {
	mu      sync.Mutex
	nextID  int
	records map[models.EntityType]map[string]models.Record
	created map[string]models.Record // opID -> authoritative record

	unreachable      bool
	rejectAll        bool
	rejectName       string // creates whose "name" matches are rejected
	conflictOnCreate bool

	createCalls int
	updateCalls int
	deleteCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records: make(map[models.EntityType]map[string]models.Record),
		created: make(map[string]models.Record),
	}
}

func (f *fakeRemote) fail() error {
	if f.unreachable {
		return remote.ErrUnreachable
	}
	if f.rejectAll {
		return fmt.Errorf("%w: status 422", remote.ErrRejected)
	}
	return nil
}

func (f *fakeRemote) table(t models.EntityType) map[string]models.Record {
	if f.records[t] == nil {
		f.records[t] = make(map[string]models.Record)
	}
	return f.records[t]
}

func (f *fakeRemote) Create(ctx context.Context, entityType models.EntityType, fields map[string]any, opID string) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	if f.rejectName != "" && fields["name"] == f.rejectName {
		return nil, fmt.Errorf("%w: invalid name", remote.ErrRejected)
	}
	if f.conflictOnCreate {
		return nil, remote.ErrConflict
	}
	if rec, ok := f.created[opID]; ok {
		out := rec.Clone()
		return &out, nil
	}

	f.nextID++
	rec := models.Record{ID: fmt.Sprintf("srv-%d", f.nextID), Fields: map[string]any{}}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	f.table(entityType)[rec.ID] = rec
	f.created[opID] = rec
	out := rec.Clone()
	return &out, nil
}

func (f *fakeRemote) Update(ctx context.Context, entityType models.EntityType, id string, fields map[string]any, opID string) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	rec, ok := f.table(entityType)[id]
	if !ok {
		return nil, remote.ErrConflict
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	f.table(entityType)[id] = rec
	out := rec.Clone()
	return &out, nil
}

func (f *fakeRemote) Delete(ctx context.Context, entityType models.EntityType, id string, opID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if err := f.fail(); err != nil {
		return err
	}
	if _, ok := f.table(entityType)[id]; !ok {
		return remote.ErrConflict
	}
	delete(f.table(entityType), id)
	return nil
}

func (f *fakeRemote) List(ctx context.Context, entityType models.EntityType) ([]models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	var out []models.Record
	for _, rec := range f.table(entityType) {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable {
		return remote.ErrUnreachable
	}
	return nil
}

func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) record(t models.EntityType, id string) (models.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.table(t)[id]
	return rec, ok
}

func (f *fakeRemote) setUnreachable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreachable = v
}

// fakeBinaries is an in-memory object store.
type fakeBinaries struct {
	mu          sync.Mutex
	nextKey     int
	uploads     int
	unreachable bool
}

func (f *fakeBinaries) Upload(ctx context.Context, bucket string, payload []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.unreachable {
		return "", remote.ErrUnreachable
	}
	f.nextKey++
	return fmt.Sprintf("photos/fake-%d.jpg", f.nextKey), nil
}

func (f *fakeBinaries) ResolveURL(ctx context.Context, bucket, path string) (string, error) {
	return "https://" + bucket + "/" + path, nil
}

// harness wires a full engine over an in-memory database.
type harness struct {
	store    *store.SQLiteRepository
	outbox   *outbox.SQLiteRepository
	photos   *photos.SQLiteRepository
	remote   *fakeRemote
	binaries *fakeBinaries
	engine   *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema := []string{
		`CREATE TABLE wines (id TEXT PRIMARY KEY, fields TEXT NOT NULL, created_at TEXT NOT NULL DEFAULT '', updated_at TEXT NOT NULL DEFAULT '')`,
		`CREATE TABLE bottles (id TEXT PRIMARY KEY, fields TEXT NOT NULL, created_at TEXT NOT NULL DEFAULT '', updated_at TEXT NOT NULL DEFAULT '')`,
		`CREATE TABLE tastings (id TEXT PRIMARY KEY, fields TEXT NOT NULL, created_at TEXT NOT NULL DEFAULT '', updated_at TEXT NOT NULL DEFAULT '')`,
		`CREATE TABLE locations (id TEXT PRIMARY KEY, fields TEXT NOT NULL, created_at TEXT NOT NULL DEFAULT '', updated_at TEXT NOT NULL DEFAULT '')`,
		`CREATE TABLE mutation_outbox (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			op_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE photo_outbox (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			op_id TEXT NOT NULL UNIQUE,
			owner_type TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			payload BLOB NOT NULL,
			mime_type TEXT NOT NULL,
			bucket TEXT NOT NULL,
			created_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0,
			remote_path TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range schema {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}

	log := logging.NewSlogLogger(slog.Default())
	h := &harness{
		store:    store.NewSQLiteRepository(db, log),
		outbox:   outbox.NewSQLiteRepository(db),
		photos:   photos.NewSQLiteRepository(db),
		remote:   newFakeRemote(),
		binaries: &fakeBinaries{},
	}
	h.engine = NewEngine(h.store, h.outbox, h.photos, h.remote, h.binaries, log)
	return h
}
