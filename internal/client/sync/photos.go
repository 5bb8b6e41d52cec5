package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mlukins/cellar/internal/client/ids"
	"github.com/mlukins/cellar/internal/client/models"
	"github.com/mlukins/cellar/internal/client/remote"
	"github.com/mlukins/cellar/internal/client/repositories/photos"
	"github.com/mlukins/cellar/internal/client/repositories/store"
)

// DrainPhotos uploads every pending photo outbox entry and propagates the
// resulting storage path. Runs independently of the mutation drain: a
// permanently failing upload never blocks field mutations, and vice versa.
func (e *Engine) DrainPhotos(ctx context.Context) error {
	if !e.uploads.begin() {
		return nil
	}

	queuedFollowUp := false
	for {
		queued, err := e.runPhotoPass(ctx)
		if err != nil {
			e.log.Error(ctx, "photo drain pass aborted", "error", err)
		}
		queuedFollowUp = queuedFollowUp || queued
		if !e.uploads.finish() {
			break
		}
	}

	// Uploads against still-temporary owners leave follow-up update
	// mutations behind; deliver them without waiting for the next trigger.
	if queuedFollowUp {
		return e.DrainMutations(ctx)
	}
	return nil
}

func (e *Engine) runPhotoPass(ctx context.Context) (bool, error) {
	entries, err := e.photos.ListPending(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list pending photos: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	e.log.Info(ctx, "photo drain pass starting", "pending", len(entries))

	queuedFollowUp := false
	var uploaded, failed int
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return queuedFollowUp, err
		}
		queued, err := e.uploadEntry(ctx, entry)
		queuedFollowUp = queuedFollowUp || queued
		if err != nil {
			failed++
			e.log.Warn(ctx, "photo not uploaded", "seq", entry.Seq,
				"owner", entry.OwnerID, "error", err)
			continue
		}
		uploaded++
	}

	if err := e.photos.RemoveUploaded(ctx); err != nil {
		return queuedFollowUp, err
	}

	e.log.Info(ctx, "photo drain pass finished", "uploaded", uploaded, "failed", failed)
	return queuedFollowUp, nil
}

// uploadEntry processes one photo entry: upload (unless a previous attempt
// already landed), back-fill the local record, propagate the reference to
// the server, and retire the entry.
func (e *Engine) uploadEntry(ctx context.Context, entry photos.Entry) (queuedFollowUp bool, err error) {
	if err := e.photos.MarkStatus(ctx, entry.Seq, photos.StatusUploading); err != nil {
		return false, err
	}

	path := entry.RemotePath
	if path == "" {
		path, err = e.binaries.Upload(ctx, entry.Bucket, entry.Payload, entry.MimeType)
		if err != nil {
			return false, e.photoFailure(ctx, entry, err)
		}
		if err := e.photos.SetRemotePath(ctx, entry.Seq, path); err != nil {
			return false, err
		}
	}

	err = e.store.SetField(ctx, entry.OwnerType, entry.OwnerID, models.PhotoField, path)
	if errors.Is(err, store.ErrNotFound) {
		// Owner vanished locally; nothing left to reference the upload.
		e.log.Warn(ctx, "photo owner gone, dropping entry", "seq", entry.Seq, "owner", entry.OwnerID)
		if err := e.photos.MarkStatus(ctx, entry.Seq, photos.StatusUploaded); err != nil {
			return false, err
		}
		return false, e.photos.Remove(ctx, entry.Seq)
	}
	if err != nil {
		return false, err
	}

	if ids.Parse(entry.OwnerID).IsTemp() {
		// The owning insert has not reconciled yet; queue the server-side
		// patch through the mutation outbox. Its sequence lands after the
		// owner's insert, so its temporary reference resolves in order.
		payload := map[string]any{"id": entry.OwnerID, models.PhotoField: path}
		if _, err := e.outbox.Append(ctx, models.MutationUpdate, entry.OwnerType, payload); err != nil {
			return false, err
		}
		queuedFollowUp = true
	} else {
		// Owner already has a real id: a single idempotent field patch,
		// no need to round-trip through the outbox.
		fields := map[string]any{models.PhotoField: path}
		if _, err := e.client.Update(ctx, entry.OwnerType, entry.OwnerID, fields, entry.OpID); err != nil {
			if errors.Is(err, remote.ErrConflict) {
				e.log.Info(ctx, "photo owner gone remotely", "seq", entry.Seq, "owner", entry.OwnerID)
			} else {
				return false, e.photoFailure(ctx, entry, err)
			}
		}
	}

	if err := e.photos.MarkStatus(ctx, entry.Seq, photos.StatusUploaded); err != nil {
		return queuedFollowUp, err
	}
	return queuedFollowUp, e.photos.Remove(ctx, entry.Seq)
}

func (e *Engine) photoFailure(ctx context.Context, entry photos.Entry, cause error) error {
	if errors.Is(cause, remote.ErrRejected) {
		if perr := e.photos.Park(ctx, entry.Seq, cause.Error()); perr != nil {
			return perr
		}
		return cause
	}

	count, merr := e.photos.MarkFailed(ctx, entry.Seq, cause.Error())
	if merr != nil {
		return merr
	}
	if count >= photos.MaxRetries {
		e.log.Warn(ctx, "photo exhausted retries, parked", "seq", entry.Seq, "attempts", count)
		return fmt.Errorf("%w: %v", ErrExhausted, cause)
	}
	return cause
}
