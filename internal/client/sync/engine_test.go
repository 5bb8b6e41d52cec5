package sync

import (
	"context"
	"testing"

	"github.com/mlukins/cellar/internal/client/ids"
	"github.com/mlukins/cellar/internal/client/models"
	"github.com/mlukins/cellar/internal/client/repositories/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueInsert(t *testing.T, h *harness, entityType models.EntityType, rec models.Record) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, entityType, rec))
	payload := rec.Clone().Fields
	payload["id"] = rec.ID
	_, err := h.outbox.Append(ctx, models.MutationInsert, entityType, payload)
	require.NoError(t, err)
}

func TestDrainMutations_ReconcilesDependencyChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wineID := ids.NewTemp().String()
	bottleID := ids.NewTemp().String()

	queueInsert(t, h, models.EntityWine, models.Record{
		ID:     wineID,
		Fields: map[string]any{"name": "Barolo", "vintage": 2019},
	})
	queueInsert(t, h, models.EntityBottle, models.Record{
		ID:     bottleID,
		Fields: map[string]any{"wine_id": wineID, "status": "cellared"},
	})
	_, err := h.outbox.Append(ctx, models.MutationUpdate, models.EntityWine,
		map[string]any{"id": wineID, "notes": "decant an hour"})
	require.NoError(t, err)

	require.NoError(t, h.engine.DrainMutations(ctx))

	pending, err := h.outbox.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	wines, err := h.store.Query(ctx, models.EntityWine, nil)
	require.NoError(t, err)
	require.Len(t, wines, 1)
	assert.False(t, ids.Parse(wines[0].ID).IsTemp())
	assert.Equal(t, "decant an hour", wines[0].StringField("notes"))

	bottles, err := h.store.Query(ctx, models.EntityBottle, nil)
	require.NoError(t, err)
	require.Len(t, bottles, 1)
	assert.False(t, ids.Parse(bottles[0].ID).IsTemp())
	assert.Equal(t, wines[0].ID, bottles[0].StringField("wine_id"))

	remoteWine, ok := h.remote.record(models.EntityWine, wines[0].ID)
	require.True(t, ok)
	assert.Equal(t, "decant an hour", remoteWine.StringField("notes"))
	remoteBottle, ok := h.remote.record(models.EntityBottle, bottles[0].ID)
	require.True(t, ok)
	assert.Equal(t, wines[0].ID, remoteBottle.StringField("wine_id"))
}

func TestDrainMutations_UnreachableRetriesThenParks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.setUnreachable(true)

	queueInsert(t, h, models.EntityWine, models.Record{
		ID:     ids.NewTemp().String(),
		Fields: map[string]any{"name": "Chianti"},
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, h.engine.DrainMutations(ctx))
	}
	assert.Equal(t, 3, h.remote.createCalls)

	failed, err := h.outbox.FailedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	// The parked entry is out of the drain's reach even once the server
	// comes back.
	h.remote.setUnreachable(false)
	require.NoError(t, h.engine.DrainMutations(ctx))
	assert.Equal(t, 3, h.remote.createCalls)
}

func TestDrainMutations_RejectionParksAfterSingleAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.rejectAll = true

	queueInsert(t, h, models.EntityLocation, models.Record{
		ID:     ids.NewTemp().String(),
		Fields: map[string]any{"name": "cellar rack A"},
	})

	require.NoError(t, h.engine.DrainMutations(ctx))
	assert.Equal(t, 1, h.remote.createCalls)

	failed, err := h.outbox.FailedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	lastErr, err := h.outbox.LastError(ctx)
	require.NoError(t, err)
	assert.Contains(t, lastErr, "rejected")

	require.NoError(t, h.engine.DrainMutations(ctx))
	assert.Equal(t, 1, h.remote.createCalls)
}

func TestDrainMutations_ConflictingInsertParksInsteadOfVanishing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.conflictOnCreate = true

	wineID := ids.NewTemp().String()
	queueInsert(t, h, models.EntityWine, models.Record{
		ID:     wineID,
		Fields: map[string]any{"name": "Duplicate"},
	})

	require.NoError(t, h.engine.DrainMutations(ctx))
	assert.Equal(t, 1, h.remote.createCalls)

	// The server refused to create anything, so the entry must not pass
	// for synced: it parks, the local row survives, and nothing reconciles.
	failed, err := h.outbox.FailedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	pending, err := h.outbox.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	local, err := h.store.Get(ctx, models.EntityWine, wineID)
	require.NoError(t, err)
	assert.Equal(t, "Duplicate", local.StringField("name"))

	remoteWines, err := h.remote.List(ctx, models.EntityWine)
	require.NoError(t, err)
	assert.Empty(t, remoteWines)

	require.NoError(t, h.engine.DrainMutations(ctx))
	assert.Equal(t, 1, h.remote.createCalls, "a parked insert is never retried")
}

func TestDrainMutations_ConflictingDeleteResolves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.outbox.Append(ctx, models.MutationDelete, models.EntityWine,
		map[string]any{"id": "srv-404"})
	require.NoError(t, err)

	require.NoError(t, h.engine.DrainMutations(ctx))

	pending, err := h.outbox.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	failed, err := h.outbox.FailedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, failed)
}

func TestDrainMutations_BlockedDependentHeldBackWithoutStallingRest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.rejectName = "corked"

	wineID := ids.NewTemp().String()
	queueInsert(t, h, models.EntityWine, models.Record{
		ID:     wineID,
		Fields: map[string]any{"name": "corked"},
	})
	queueInsert(t, h, models.EntityBottle, models.Record{
		ID:     ids.NewTemp().String(),
		Fields: map[string]any{"wine_id": wineID, "status": "cellared"},
	})
	queueInsert(t, h, models.EntityLocation, models.Record{
		ID:     ids.NewTemp().String(),
		Fields: map[string]any{"name": "rack B"},
	})

	require.NoError(t, h.engine.DrainMutations(ctx))

	// The rejected insert is parked, the dependent bottle is held back, and
	// the unrelated location still makes it through.
	locations, err := h.store.Query(ctx, models.EntityLocation, nil)
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.False(t, ids.Parse(locations[0].ID).IsTemp())

	lastErr, err := h.outbox.LastError(ctx)
	require.NoError(t, err)
	assert.Contains(t, lastErr, wineID)

	bottles, err := h.store.Query(ctx, models.EntityBottle, nil)
	require.NoError(t, err)
	require.Len(t, bottles, 1)
	assert.True(t, ids.Parse(bottles[0].ID).IsTemp())
}

func TestDrainMutations_ReplayAfterCrashDoesNotDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wineID := ids.NewTemp().String()
	queueInsert(t, h, models.EntityWine, models.Record{
		ID:     wineID,
		Fields: map[string]any{"name": "Rioja"},
	})

	entries, err := h.outbox.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// The create landed on the server but the process died before the entry
	// was retired; the row is still in-flight on restart.
	_, err = h.remote.Create(ctx, models.EntityWine, map[string]any{"name": "Rioja"}, entries[0].OpID)
	require.NoError(t, err)
	require.NoError(t, h.outbox.MarkStatus(ctx, entries[0].Seq, outbox.StatusInFlight))

	require.NoError(t, h.engine.DrainMutations(ctx))

	wines, err := h.remote.List(ctx, models.EntityWine)
	require.NoError(t, err)
	assert.Len(t, wines, 1)

	local, err := h.store.Query(ctx, models.EntityWine, nil)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, wines[0].ID, local[0].ID)
}

func TestDrainPhotos_TempOwnerBackfillsThroughMutationOutbox(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wineID := ids.NewTemp().String()
	queueInsert(t, h, models.EntityWine, models.Record{
		ID:     wineID,
		Fields: map[string]any{"name": "Pinot Noir"},
	})
	_, err := h.photos.Append(ctx, models.EntityWine, wineID, []byte{0xFF, 0xD8}, "image/jpeg", "cellar-photos")
	require.NoError(t, err)

	require.NoError(t, h.engine.DrainPhotos(ctx))

	wines, err := h.store.Query(ctx, models.EntityWine, nil)
	require.NoError(t, err)
	require.Len(t, wines, 1)
	assert.False(t, ids.Parse(wines[0].ID).IsTemp())
	assert.Equal(t, "photos/fake-1.jpg", wines[0].StringField(models.PhotoField))

	remoteWine, ok := h.remote.record(models.EntityWine, wines[0].ID)
	require.True(t, ok)
	assert.Equal(t, "photos/fake-1.jpg", remoteWine.StringField(models.PhotoField))

	pendingPhotos, err := h.photos.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pendingPhotos)
	pendingMutations, err := h.outbox.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pendingMutations)
}

func TestDrainPhotos_RealOwnerPatchesDirectly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, err := h.remote.Create(ctx, models.EntityWine, map[string]any{"name": "Syrah"}, "op-direct")
	require.NoError(t, err)
	require.NoError(t, h.store.Put(ctx, models.EntityWine, *rec))

	_, err = h.photos.Append(ctx, models.EntityWine, rec.ID, []byte{0x89, 0x50}, "image/png", "cellar-photos")
	require.NoError(t, err)

	require.NoError(t, h.engine.DrainPhotos(ctx))

	remoteWine, ok := h.remote.record(models.EntityWine, rec.ID)
	require.True(t, ok)
	assert.NotEmpty(t, remoteWine.StringField(models.PhotoField))

	pending, err := h.outbox.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "a reachable owner needs no queued follow-up")
}

func TestDrainPhotos_RetrySkipsCompletedUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, err := h.remote.Create(ctx, models.EntityWine, map[string]any{"name": "Merlot"}, "op-skip")
	require.NoError(t, err)
	require.NoError(t, h.store.Put(ctx, models.EntityWine, *rec))
	_, err = h.photos.Append(ctx, models.EntityWine, rec.ID, []byte{0xFF}, "image/jpeg", "cellar-photos")
	require.NoError(t, err)

	// Upload lands but the reference patch does not.
	h.remote.setUnreachable(true)
	require.NoError(t, h.engine.DrainPhotos(ctx))
	assert.Equal(t, 1, h.binaries.uploads)
	pending, err := h.photos.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	h.remote.setUnreachable(false)
	require.NoError(t, h.engine.DrainPhotos(ctx))
	assert.Equal(t, 1, h.binaries.uploads, "the bucket object must not be re-uploaded")

	pending, err = h.photos.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestDrainPhotos_FailureDoesNotBlockMutations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.binaries.unreachable = true

	wineID := ids.NewTemp().String()
	queueInsert(t, h, models.EntityWine, models.Record{
		ID:     wineID,
		Fields: map[string]any{"name": "Gamay"},
	})
	_, err := h.photos.Append(ctx, models.EntityWine, wineID, []byte{0x01}, "image/jpeg", "cellar-photos")
	require.NoError(t, err)

	require.NoError(t, h.engine.DrainPhotos(ctx))
	require.NoError(t, h.engine.DrainMutations(ctx))

	pendingMutations, err := h.outbox.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pendingMutations)

	pendingPhotos, err := h.photos.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pendingPhotos)
}

func TestRefresh_SkippedWhileMutationsPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.remote.Create(ctx, models.EntityWine, map[string]any{"name": "Riesling"}, "op-r1")
	require.NoError(t, err)
	_, err = h.outbox.Append(ctx, models.MutationUpdate, models.EntityWine,
		map[string]any{"id": "srv-9", "notes": "x"})
	require.NoError(t, err)

	require.NoError(t, h.engine.Refresh(ctx))

	local, err := h.store.Query(ctx, models.EntityWine, nil)
	require.NoError(t, err)
	assert.Empty(t, local)
}

func TestRefresh_PullsRemoteAndPrunesDeletedRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	kept, err := h.remote.Create(ctx, models.EntityWine, map[string]any{"name": "Malbec"}, "op-r2")
	require.NoError(t, err)

	// A row deleted on another device, and a local-only temporary row.
	require.NoError(t, h.store.Put(ctx, models.EntityWine, models.Record{
		ID: "srv-999", Fields: map[string]any{"name": "gone"},
	}))
	tempID := ids.NewTemp().String()
	require.NoError(t, h.store.Put(ctx, models.EntityWine, models.Record{
		ID: tempID, Fields: map[string]any{"name": "draft"},
	}))

	require.NoError(t, h.engine.Refresh(ctx))

	local, err := h.store.Query(ctx, models.EntityWine, nil)
	require.NoError(t, err)
	got := make(map[string]bool, len(local))
	for _, rec := range local {
		got[rec.ID] = true
	}
	assert.True(t, got[kept.ID])
	assert.True(t, got[tempID])
	assert.False(t, got["srv-999"])
}
