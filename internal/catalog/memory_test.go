package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demonflare/fallowl/internal/models"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	rec := models.Recording{
		AccountID: "AC1",
		OriginID:  "RE1",
		OriginURL: "https://origin/recordings/RE1",
		Status:    models.RecordingStatusPending,
	}
	require.NoError(t, store.Create(context.Background(), &rec))
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "RE1", got.OriginID)

	byOrigin, err := store.GetByOriginID(context.Background(), "AC1", "RE1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byOrigin.ID)
}

func TestMemoryStore_NotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetByOriginID(context.Background(), "AC1", "REmissing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Update(context.Background(), uuid.New(), models.RecordingPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetByOriginIDScopedToAccount(t *testing.T) {
	store := NewMemoryStore()
	rec := models.Recording{AccountID: "AC1", OriginID: "RE1"}
	require.NoError(t, store.Create(context.Background(), &rec))

	_, err := store.GetByOriginID(context.Background(), "AC2", "RE1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListByAccountNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"RE1", "RE2", "RE3"} {
		rec := models.Recording{AccountID: "AC1", OriginID: id}
		require.NoError(t, store.Create(context.Background(), &rec))
		time.Sleep(time.Millisecond)
	}
	other := models.Recording{AccountID: "AC2", OriginID: "RE9"}
	require.NoError(t, store.Create(context.Background(), &other))

	list, err := store.ListByAccount(context.Background(), "AC1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "RE3", list[0].OriginID)
	assert.Equal(t, "RE1", list[2].OriginID)
}

func TestMemoryStore_UpdateAppliesOnlyPatchedFields(t *testing.T) {
	store := NewMemoryStore()
	rec := models.Recording{
		AccountID: "AC1",
		OriginID:  "RE1",
		OriginURL: "https://origin/recordings/RE1",
		Status:    models.RecordingStatusPending,
	}
	require.NoError(t, store.Create(context.Background(), &rec))

	status := models.RecordingStatusReady
	durableURL := "https://cdn.example.com/recordings/AC1/RE1.mp3"
	now := time.Now()
	require.NoError(t, store.Update(context.Background(), rec.ID, models.RecordingPatch{
		Status:     &status,
		DurableURL: &durableURL,
		UploadedAt: &now,
	}))

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusReady, got.Status)
	assert.Equal(t, durableURL, got.DurableURL)
	require.NotNil(t, got.UploadedAt)
	assert.Equal(t, "https://origin/recordings/RE1", got.OriginURL, "unpatched field is untouched")
}

func TestMemoryStore_UpdateMergesMetadata(t *testing.T) {
	store := NewMemoryStore()
	rec := models.Recording{AccountID: "AC1", OriginID: "RE1"}
	require.NoError(t, store.Create(context.Background(), &rec))

	require.NoError(t, store.Update(context.Background(), rec.ID, models.RecordingPatch{
		Metadata: &models.Metadata{UploadAttempts: 2, LastUploadError: "timeout"},
	}))
	require.NoError(t, store.Update(context.Background(), rec.ID, models.RecordingPatch{
		Metadata: &models.Metadata{DeleteAttempts: 1},
	}))

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Metadata.UploadAttempts, "earlier attempt count survives the merge")
	assert.Equal(t, "timeout", got.Metadata.LastUploadError)
	assert.Equal(t, 1, got.Metadata.DeleteAttempts)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	rec := models.Recording{AccountID: "AC1", OriginID: "RE1"}
	require.NoError(t, store.Create(context.Background(), &rec))

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	got.Status = models.RecordingStatusError

	again, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.RecordingStatusError, again.Status)
}
