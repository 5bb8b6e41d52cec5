// Package services exposes the application-facing surface of the engine:
// reads always served from the local store, writes that attempt the backend
// first and fall back to the outboxes, and the pending/error counters the
// connectivity indicator shows.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/mlukins/cellar/internal/client/ids"
	"github.com/mlukins/cellar/internal/client/models"
	"github.com/mlukins/cellar/internal/client/remote"
	"github.com/mlukins/cellar/internal/client/repositories/outbox"
	"github.com/mlukins/cellar/internal/client/repositories/photos"
	"github.com/mlukins/cellar/internal/client/repositories/store"
	enginepkg "github.com/mlukins/cellar/internal/client/sync"
	"github.com/mlukins/cellar/internal/logging"
)

// OutboxKind selects which queue a counter refers to.
type OutboxKind string

const (
	OutboxMutations OutboxKind = "mutations"
	OutboxPhotos    OutboxKind = "photos"
)

// CellarService is the single entry point the UI layer talks to. No caller
// ever touches the store or the outboxes directly.
type CellarService struct {
	store       store.Repository
	outbox      outbox.Repository
	photos      photos.Repository
	client      remote.Client
	binaries    remote.BinaryStore
	engine      *enginepkg.Engine
	photoBucket string
	log         logging.Logger
}

func NewCellarService(st store.Repository, ob outbox.Repository, ph photos.Repository,
	client remote.Client, binaries remote.BinaryStore, engine *enginepkg.Engine,
	photoBucket string, log logging.Logger) *CellarService {
	return &CellarService{
		store:       st,
		outbox:      ob,
		photos:      ph,
		client:      client,
		binaries:    binaries,
		engine:      engine,
		photoBucket: photoBucket,
		log:         log.With("component", "service"),
	}
}

// List returns all local records of a kind.
func (s *CellarService) List(ctx context.Context, entityType models.EntityType) ([]models.Record, error) {
	return s.store.Query(ctx, entityType, nil)
}

// Query returns local records matching pred.
func (s *CellarService) Query(ctx context.Context, entityType models.EntityType, pred func(models.Record) bool) ([]models.Record, error) {
	return s.store.Query(ctx, entityType, pred)
}

// Get returns one local record. A corrupted row is treated as a cache miss:
// the row is dropped and refetched from the backend if reachable.
func (s *CellarService) Get(ctx context.Context, entityType models.EntityType, id string) (*models.Record, error) {
	rec, err := s.store.Get(ctx, entityType, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrCorrupted) {
		return nil, err
	}

	s.log.Warn(ctx, "dropping corrupted record, refetching", "entity_type", entityType, "id", id)
	if derr := s.store.Delete(ctx, entityType, id); derr != nil {
		return nil, derr
	}
	records, lerr := s.client.List(ctx, entityType)
	if lerr != nil {
		return nil, store.ErrNotFound
	}
	for _, r := range records {
		if r.ID == id {
			if perr := s.store.Put(ctx, entityType, r); perr != nil {
				return nil, perr
			}
			found := r
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

// Insert creates a record: remote first, local-plus-outbox on unreachable.
// The returned record carries either the server id or a temporary one. A
// payload still referencing a temporary id never goes to the server
// directly; it queues behind the insert that will resolve the reference.
func (s *CellarService) Insert(ctx context.Context, entityType models.EntityType, fields map[string]any) (*models.Record, error) {
	if !hasTempReference(entityType, fields) {
		authoritative, err := s.client.Create(ctx, entityType, fields, newOpID())
		if err == nil {
			if perr := s.store.Put(ctx, entityType, *authoritative); perr != nil {
				return nil, perr
			}
			return authoritative, nil
		}
		if !errors.Is(err, remote.ErrUnreachable) {
			return nil, err
		}
	}

	temp := ids.NewTemp()
	rec := models.Record{ID: temp.String(), Fields: fields}
	if err := s.store.Put(ctx, entityType, rec); err != nil {
		return nil, err
	}

	payload := clone(fields)
	payload["id"] = temp.String()
	if _, err := s.outbox.Append(ctx, models.MutationInsert, entityType, payload); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "insert queued offline", "entity_type", entityType, "id", temp.String())
	return &rec, nil
}

// Update patches fields of an existing record. For a still-temporary record
// the backend is not consulted: the server has never seen the id. The same
// holds when the patch itself carries a temporary reference.
func (s *CellarService) Update(ctx context.Context, entityType models.EntityType, id string, fields map[string]any) (*models.Record, error) {
	if !ids.Parse(id).IsTemp() && !hasTempReference(entityType, fields) {
		authoritative, err := s.client.Update(ctx, entityType, id, fields, newOpID())
		if err == nil {
			if perr := s.store.Put(ctx, entityType, *authoritative); perr != nil {
				return nil, perr
			}
			return authoritative, nil
		}
		if !errors.Is(err, remote.ErrUnreachable) {
			return nil, err
		}
	}

	rec, err := s.applyLocal(ctx, entityType, id, fields)
	if err != nil {
		return nil, err
	}

	payload := clone(fields)
	payload["id"] = id
	if _, err := s.outbox.Append(ctx, models.MutationUpdate, entityType, payload); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "update queued offline", "entity_type", entityType, "id", id)
	return rec, nil
}

// Delete removes a record. Deleting a record whose insert never synced
// cancels the insert outright: the operation never happened from the
// server's point of view.
func (s *CellarService) Delete(ctx context.Context, entityType models.EntityType, id string) error {
	if ids.Parse(id).IsTemp() {
		if err := s.store.Delete(ctx, entityType, id); err != nil {
			return err
		}
		if err := s.outbox.PurgeEntity(ctx, id); err != nil {
			return err
		}
		return s.photos.PurgeOwner(ctx, id)
	}

	err := s.client.Delete(ctx, entityType, id, newOpID())
	switch {
	case err == nil, errors.Is(err, remote.ErrConflict):
		return s.store.Delete(ctx, entityType, id)
	case errors.Is(err, remote.ErrUnreachable):
		if err := s.store.Delete(ctx, entityType, id); err != nil {
			return err
		}
		if _, err := s.outbox.Append(ctx, models.MutationDelete, entityType, map[string]any{"id": id}); err != nil {
			return err
		}
		s.log.Info(ctx, "delete queued offline", "entity_type", entityType, "id", id)
		return nil
	default:
		return err
	}
}

// AttachPhoto stores a binary attachment for a record. When the owner is
// already server-known and the backend reachable, the upload happens
// directly; otherwise the photo outbox takes over.
func (s *CellarService) AttachPhoto(ctx context.Context, ownerType models.EntityType, ownerID string, payload []byte, mimeType string) error {
	if _, err := s.store.Get(ctx, ownerType, ownerID); err != nil {
		return fmt.Errorf("photo owner: %w", err)
	}

	if !ids.Parse(ownerID).IsTemp() {
		path, err := s.binaries.Upload(ctx, s.photoBucket, payload, mimeType)
		if err == nil {
			if _, err := s.client.Update(ctx, ownerType, ownerID, map[string]any{models.PhotoField: path}, newOpID()); err == nil {
				return s.store.SetField(ctx, ownerType, ownerID, models.PhotoField, path)
			}
		}
		// Fall through to the outbox on any failure; re-upload is cheaper
		// than reasoning about which half landed.
	}

	if _, err := s.photos.Append(ctx, ownerType, ownerID, payload, mimeType, s.photoBucket); err != nil {
		return err
	}
	s.log.Info(ctx, "photo queued", "owner_type", ownerType, "owner", ownerID, "bytes", len(payload))
	return nil
}

// PhotoURL resolves a record's stored photo path to a fetchable URL.
func (s *CellarService) PhotoURL(ctx context.Context, entityType models.EntityType, id string) (string, error) {
	rec, err := s.store.Get(ctx, entityType, id)
	if err != nil {
		return "", err
	}
	path := rec.StringField(models.PhotoField)
	if path == "" {
		return "", errors.New("record has no photo")
	}
	return s.binaries.ResolveURL(ctx, s.photoBucket, path)
}

// PendingCount reports how many entries of the given outbox still await
// replay, excluding parked ones.
func (s *CellarService) PendingCount(ctx context.Context, kind OutboxKind) (int, error) {
	switch kind {
	case OutboxMutations:
		return s.outbox.PendingCount(ctx)
	case OutboxPhotos:
		return s.photos.PendingCount(ctx)
	default:
		return 0, fmt.Errorf("unknown outbox kind %q", kind)
	}
}

// FailedCount reports how many entries are parked at the retry ceiling and
// need attention.
func (s *CellarService) FailedCount(ctx context.Context, kind OutboxKind) (int, error) {
	switch kind {
	case OutboxMutations:
		return s.outbox.FailedCount(ctx)
	case OutboxPhotos:
		return s.photos.FailedCount(ctx)
	default:
		return 0, fmt.Errorf("unknown outbox kind %q", kind)
	}
}

// LastSyncError returns the most recent recorded failure for the given
// outbox, or nil.
func (s *CellarService) LastSyncError(ctx context.Context, kind OutboxKind) (error, error) {
	var (
		cause string
		err   error
	)
	switch kind {
	case OutboxMutations:
		cause, err = s.outbox.LastError(ctx)
	case OutboxPhotos:
		cause, err = s.photos.LastError(ctx)
	default:
		return nil, fmt.Errorf("unknown outbox kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	if cause == "" {
		return nil, nil
	}
	return errors.New(cause), nil
}

// Refresh pulls remote state into the local store without draining first.
// Skipped internally while mutations are still pending.
func (s *CellarService) Refresh(ctx context.Context) error {
	return s.engine.Refresh(ctx)
}

// Sync forces one drain of both outboxes followed by a refresh.
func (s *CellarService) Sync(ctx context.Context) error {
	if err := s.engine.DrainMutations(ctx); err != nil {
		return err
	}
	if err := s.engine.DrainPhotos(ctx); err != nil {
		return err
	}
	return s.engine.Refresh(ctx)
}

func (s *CellarService) applyLocal(ctx context.Context, entityType models.EntityType, id string, fields map[string]any) (*models.Record, error) {
	rec, err := s.store.Get(ctx, entityType, id)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrCorrupted) {
		rec = &models.Record{ID: id, Fields: map[string]any{}}
	} else if err != nil {
		return nil, err
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	if err := s.store.Put(ctx, entityType, *rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// hasTempReference reports whether any registered foreign-key field still
// carries a temporary id. Such payloads must travel through the outbox so
// that sequence-ordered reconciliation rewrites the reference; sent directly,
// a temporary id would leak into the remote store where nothing rewrites it.
func hasTempReference(entityType models.EntityType, fields map[string]any) bool {
	for _, f := range models.ForeignKeys(entityType) {
		if s, ok := fields[f].(string); ok && ids.Parse(s).IsTemp() {
			return true
		}
	}
	return false
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
