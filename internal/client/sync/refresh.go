package sync

import (
	"context"
	"fmt"

	"github.com/mlukins/cellar/internal/client/ids"
	"github.com/mlukins/cellar/internal/client/models"
)

// Refresh pulls the remote tables into the local store so offline reads
// converge with the system of record. It is opportunistic: if mutations are
// still pending the refresh is skipped, since overwriting rows that have
// unreplayed local edits would lose them.
func (e *Engine) Refresh(ctx context.Context) error {
	pending, err := e.outbox.PendingCount(ctx)
	if err != nil {
		return err
	}
	if pending > 0 {
		e.log.Debug(ctx, "refresh skipped, mutations pending", "pending", pending)
		return nil
	}

	for _, t := range models.AllEntityTypes {
		if err := e.refreshKind(ctx, t); err != nil {
			return fmt.Errorf("failed to refresh %s: %w", t, err)
		}
	}
	return nil
}

func (e *Engine) refreshKind(ctx context.Context, entityType models.EntityType) error {
	records, err := e.client.List(ctx, entityType)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		seen[rec.ID] = struct{}{}
		if err := e.store.Put(ctx, entityType, rec); err != nil {
			return err
		}
	}

	// Drop local rows the server no longer has. Temporary rows are local
	// creations the server has never seen; they stay.
	local, err := e.store.Query(ctx, entityType, nil)
	if err != nil {
		return err
	}
	for _, rec := range local {
		if _, ok := seen[rec.ID]; ok || ids.Parse(rec.ID).IsTemp() {
			continue
		}
		if err := e.store.Delete(ctx, entityType, rec.ID); err != nil {
			return err
		}
	}
	return nil
}
