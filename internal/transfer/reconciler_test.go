package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demonflare/fallowl/internal/catalog"
	"github.com/demonflare/fallowl/internal/models"
	"github.com/demonflare/fallowl/internal/origin"
)

func newTestReconciler(t *testing.T, org *fakeOrigin) (*Reconciler, *catalog.MemoryStore) {
	t.Helper()
	cat := catalog.NewMemoryStore()
	r := NewReconciler(cat, org, nil, nil)
	r.sleep = func(time.Duration) {}
	return r, cat
}

func seedMigrated(t *testing.T, cat *catalog.MemoryStore) *models.Recording {
	t.Helper()
	uploaded := time.Now().Add(-time.Minute)
	rec := models.Recording{
		AccountID:  "AC1",
		OriginID:   "RE1",
		OriginURL:  "https://origin/rec1",
		DurableURL: "https://cdn.example.com/recordings/AC1/RE1.mp3",
		DurableKey: "recordings/AC1/RE1.mp3",
		Status:     models.RecordingStatusReady,
		UploadedAt: &uploaded,
	}
	require.NoError(t, cat.Create(context.Background(), &rec))
	return &rec
}

func TestDeleteOrigin_Success(t *testing.T) {
	org := &fakeOrigin{}
	r, cat := newTestReconciler(t, org)
	rec := seedMigrated(t, cat)

	ok, err := r.DeleteOrigin(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, org.deleteCalls)

	got, err := cat.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.OriginDeletedAt)
	assert.Empty(t, got.Metadata.LastDeleteError)
}

func TestDeleteOrigin_NotFoundIsSuccess(t *testing.T) {
	transient := errors.New("origin 503")
	cases := []struct {
		name        string
		deleteErrs  []error
		wantAttempts int
	}{
		{"first attempt", []error{origin.ErrRecordingNotFound}, 1},
		{"second attempt", []error{transient, origin.ErrRecordingNotFound}, 2},
		{"third attempt", []error{transient, transient, origin.ErrRecordingNotFound}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			org := &fakeOrigin{deleteErrs: tc.deleteErrs}
			r, cat := newTestReconciler(t, org)
			rec := seedMigrated(t, cat)

			ok, err := r.DeleteOrigin(context.Background(), rec.ID)
			require.NoError(t, err)
			assert.True(t, ok, "already-gone must count as success")
			assert.Equal(t, tc.wantAttempts, org.deleteCalls)

			got, err := cat.GetByID(context.Background(), rec.ID)
			require.NoError(t, err)
			assert.NotNil(t, got.OriginDeletedAt)
			assert.Empty(t, got.Metadata.LastDeleteError, "not-found records no delete error")
		})
	}
}

func TestDeleteOrigin_RefusesBeforeUpload(t *testing.T) {
	org := &fakeOrigin{}
	r, cat := newTestReconciler(t, org)
	rec := models.Recording{
		AccountID: "AC1", OriginID: "RE1", OriginURL: "https://origin/rec1",
		Status: models.RecordingStatusPending,
	}
	require.NoError(t, cat.Create(context.Background(), &rec))

	ok, err := r.DeleteOrigin(context.Background(), rec.ID)
	assert.ErrorIs(t, err, ErrUploadNotConfirmed)
	assert.False(t, ok)
	assert.Zero(t, org.deleteCalls, "no remote call when the origin copy is the only copy")
}

func TestDeleteOrigin_AlreadyDeletedIsNoOp(t *testing.T) {
	org := &fakeOrigin{}
	r, cat := newTestReconciler(t, org)
	rec := seedMigrated(t, cat)
	deleted := time.Now()
	require.NoError(t, cat.Update(context.Background(), rec.ID, models.RecordingPatch{OriginDeletedAt: &deleted}))

	ok, err := r.DeleteOrigin(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, org.deleteCalls)
}

func TestDeleteOrigin_ExhaustionKeepsReady(t *testing.T) {
	boom := errors.New("origin 500")
	org := &fakeOrigin{deleteErrs: []error{boom, boom, boom}}
	r, cat := newTestReconciler(t, org)
	rec := seedMigrated(t, cat)

	ok, err := r.DeleteOrigin(context.Background(), rec.ID)
	require.NoError(t, err, "exhaustion is an expected failure, not an error")
	assert.False(t, ok)
	assert.Equal(t, 3, org.deleteCalls, "exactly three delete attempts")

	got, err := cat.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusReady, got.Status, "cleanup failure never demotes a migrated recording")
	assert.Nil(t, got.OriginDeletedAt)
	assert.Equal(t, 3, got.Metadata.DeleteAttempts)
	assert.Equal(t, "origin 500", got.Metadata.LastDeleteError)
}
