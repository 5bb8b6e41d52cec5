package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mlukins/cellar/internal/client/ids"
	"github.com/mlukins/cellar/internal/client/models"
	"github.com/mlukins/cellar/internal/client/remote"
	"github.com/mlukins/cellar/internal/client/repositories/outbox"
	"github.com/mlukins/cellar/internal/client/repositories/store"
)

// DrainMutations replays every pending mutation outbox entry in sequence
// order. A trigger arriving while a pass runs is coalesced into exactly one
// follow-up pass over the then-current pending set.
func (e *Engine) DrainMutations(ctx context.Context) error {
	if !e.mutations.begin() {
		return nil
	}
	for {
		if err := e.runMutationPass(ctx); err != nil {
			e.log.Error(ctx, "mutation drain pass aborted", "error", err)
		}
		if !e.mutations.finish() {
			return nil
		}
	}
}

func (e *Engine) runMutationPass(ctx context.Context) error {
	entries, err := e.outbox.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending mutations: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	e.log.Info(ctx, "mutation drain pass starting", "pending", len(entries))

	// Temporary ids resolved by inserts earlier in the pass, so later
	// dependents can be dispatched with real references.
	resolved := make(map[string]string)

	var synced, failed int
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.replayEntry(ctx, entry, resolved); err != nil {
			failed++
			e.log.Warn(ctx, "entry not synced", "seq", entry.Seq, "kind", entry.Kind,
				"entity_type", entry.EntityType, "error", err)
			continue
		}
		synced++
	}

	// Per-entry removal already happened; this catches rows a concurrent
	// process may have left behind.
	if err := e.outbox.RemoveSynced(ctx); err != nil {
		return err
	}

	e.log.Info(ctx, "mutation drain pass finished", "synced", synced, "failed", failed)
	return nil
}

// replayEntry processes one outbox entry end to end. A returned error means
// the entry did not reach synced; its bookkeeping is already persisted.
func (e *Engine) replayEntry(ctx context.Context, entry outbox.Entry, resolved map[string]string) error {
	if err := e.outbox.MarkStatus(ctx, entry.Seq, outbox.StatusInFlight); err != nil {
		return err
	}

	fields, dep := substituteReferences(entry, resolved)
	if dep != "" {
		cause := fmt.Sprintf("blocked by dependency %s", dep)
		if _, err := e.outbox.MarkFailed(ctx, entry.Seq, cause); err != nil {
			return err
		}
		return errors.New(cause)
	}

	err := e.dispatch(ctx, entry, fields, resolved)
	if err == nil {
		if err := e.outbox.MarkStatus(ctx, entry.Seq, outbox.StatusSynced); err != nil {
			return err
		}
		return e.outbox.Remove(ctx, entry.Seq)
	}

	// For updates and deletes, conflict means the target is already gone
	// server-side: the outcome the entry wanted (for deletes) or one that
	// can never be applied (for updates to a vanished row). Either way the
	// entry is done. A conflicting insert is different: the server refused
	// to create the record, so nothing exists to reconcile against and the
	// entry must not pass for synced.
	if errors.Is(err, remote.ErrConflict) && entry.Kind != models.MutationInsert {
		e.log.Info(ctx, "entry resolved by conflict", "seq", entry.Seq, "kind", entry.Kind)
		if err := e.outbox.MarkStatus(ctx, entry.Seq, outbox.StatusSynced); err != nil {
			return err
		}
		return e.outbox.Remove(ctx, entry.Seq)
	}

	// Rejections are final: the server saw the operation and declined it.
	// An insert bounced with a conflict lands here too.
	if errors.Is(err, remote.ErrRejected) || errors.Is(err, remote.ErrConflict) {
		if perr := e.outbox.Park(ctx, entry.Seq, err.Error()); perr != nil {
			return perr
		}
		return err
	}

	count, merr := e.outbox.MarkFailed(ctx, entry.Seq, err.Error())
	if merr != nil {
		return merr
	}
	if count >= outbox.MaxRetries {
		e.log.Warn(ctx, "entry exhausted retries, parked", "seq", entry.Seq, "attempts", count)
		return fmt.Errorf("%w: %v", ErrExhausted, err)
	}
	return err
}

// substituteReferences copies the entry payload with every temporary id that
// has already reconciled swapped for its real id. It returns the unresolved
// temporary id, if any, that blocks the entry. An insert's own id is not a
// dependency.
func substituteReferences(entry outbox.Entry, resolved map[string]string) (map[string]any, string) {
	fields := make(map[string]any, len(entry.Payload))
	for k, v := range entry.Payload {
		fields[k] = v
	}

	check := append([]string{"id"}, models.ForeignKeys(entry.EntityType)...)
	for _, f := range check {
		raw, ok := fields[f].(string)
		if !ok || !ids.Parse(raw).IsTemp() {
			continue
		}
		if real, ok := resolved[raw]; ok {
			fields[f] = real
			continue
		}
		if f == "id" && entry.Kind == models.MutationInsert {
			continue
		}
		return nil, raw
	}
	return fields, ""
}

func (e *Engine) dispatch(ctx context.Context, entry outbox.Entry, fields map[string]any, resolved map[string]string) error {
	id, _ := fields["id"].(string)
	delete(fields, "id")

	switch entry.Kind {
	case models.MutationInsert:
		authoritative, err := e.client.Create(ctx, entry.EntityType, fields, entry.OpID)
		if err != nil {
			return err
		}
		return e.reconcile(ctx, entry.EntityType, id, *authoritative, resolved)

	case models.MutationUpdate:
		authoritative, err := e.client.Update(ctx, entry.EntityType, id, fields, entry.OpID)
		if err != nil {
			return err
		}
		return e.store.Put(ctx, entry.EntityType, *authoritative)

	case models.MutationDelete:
		return e.client.Delete(ctx, entry.EntityType, id, entry.OpID)

	default:
		return fmt.Errorf("unknown mutation kind %q", entry.Kind)
	}
}

// reconcile swaps tempID for the server-assigned id everywhere it lives: the
// local store row and its dependents (atomically), pending mutation
// payloads, and photo outbox owners. The photo-reference field written by a
// completed upload is preserved if the server has not seen it yet.
func (e *Engine) reconcile(ctx context.Context, entityType models.EntityType, tempID string, authoritative models.Record, resolved map[string]string) error {
	if local, err := e.store.Get(ctx, entityType, tempID); err == nil {
		if p := local.StringField(models.PhotoField); p != "" && authoritative.StringField(models.PhotoField) == "" {
			authoritative.Fields[models.PhotoField] = p
		}
	} else if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrCorrupted) {
		return err
	}

	if err := e.store.Rekey(ctx, entityType, tempID, authoritative); err != nil {
		return fmt.Errorf("failed to rekey %s/%s: %w", entityType, tempID, err)
	}
	if err := e.outbox.ResolveReferences(ctx, tempID, authoritative.ID); err != nil {
		return err
	}
	if err := e.photos.Rehome(ctx, tempID, authoritative.ID); err != nil {
		return err
	}

	resolved[tempID] = authoritative.ID
	e.log.Debug(ctx, "identifier reconciled", "entity_type", entityType,
		"temp_id", tempID, "id", authoritative.ID)
	return nil
}
