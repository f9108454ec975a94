package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demonflare/fallowl/internal/catalog"
	"github.com/demonflare/fallowl/internal/models"
)

// fakeOrigin counts remote calls and fails per script.
type fakeOrigin struct {
	mu            sync.Mutex
	downloadCalls int
	deleteCalls   int
	payload       []byte
	downloadErr   error
	deleteErrs    []error // consumed per call; nil entry = success
}

func (f *fakeOrigin) Download(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.payload, nil
}

func (f *fakeOrigin) Delete(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if len(f.deleteErrs) > 0 {
		err := f.deleteErrs[0]
		f.deleteErrs = f.deleteErrs[1:]
		return err
	}
	return nil
}

// fakeStore counts uploads and fails the first N.
type fakeStore struct {
	mu        sync.Mutex
	putCalls  int
	failFirst int
	lastKey   string
}

func (f *fakeStore) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putCalls <= f.failFirst {
		return "", errors.New("storage unavailable")
	}
	f.lastKey = key
	return "https://cdn.example.com/" + key, nil
}

func newTestEngine(t *testing.T, org *fakeOrigin, store *fakeStore) (*Engine, *catalog.MemoryStore) {
	t.Helper()
	cat := catalog.NewMemoryStore()
	var oc OriginClient
	if org != nil {
		oc = org
	}
	e := NewEngine(cat, oc, store, nil, nil)
	e.sleep = func(time.Duration) {}
	e.reconciler.sleep = func(time.Duration) {}
	return e, cat
}

func seedRecording(t *testing.T, cat *catalog.MemoryStore, rec models.Recording) *models.Recording {
	t.Helper()
	if rec.Status == "" {
		rec.Status = models.RecordingStatusPending
	}
	require.NoError(t, cat.Create(context.Background(), &rec))
	return &rec
}

func TestMigrate_SuccessDeletesOriginAfterUpload(t *testing.T) {
	org := &fakeOrigin{payload: []byte("audio-bytes")}
	store := &fakeStore{}
	e, cat := newTestEngine(t, org, store)
	rec := seedRecording(t, cat, models.Recording{
		AccountID: "AC1", OriginID: "RE1", OriginURL: "https://origin/rec1",
	})

	res, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, res.Uploaded)
	assert.Equal(t, "https://cdn.example.com/recordings/AC1/RE1.mp3", res.DurableURL)

	got, err := cat.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusReady, got.Status)
	require.NotNil(t, got.UploadedAt)
	require.NotNil(t, got.OriginDeletedAt)
	assert.Equal(t, int64(len("audio-bytes")), got.SizeBytes)
	assert.Equal(t, 1, store.putCalls)
	assert.Equal(t, 1, org.deleteCalls)
}

func TestMigrate_SecondCallIsNoOp(t *testing.T) {
	org := &fakeOrigin{payload: []byte("audio")}
	store := &fakeStore{}
	e, cat := newTestEngine(t, org, store)
	rec := seedRecording(t, cat, models.Recording{
		AccountID: "AC1", OriginID: "RE1", OriginURL: "https://origin/rec1",
	})

	first, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	require.NoError(t, err)
	second, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, first.DurableURL, second.DurableURL)
	assert.Equal(t, 1, org.downloadCalls, "second call must not download")
	assert.Equal(t, 1, store.putCalls, "exactly one remote upload in total")
	assert.Equal(t, 1, org.deleteCalls, "exactly one remote delete in total")
}

func TestMigrate_MissingOriginReference(t *testing.T) {
	org := &fakeOrigin{}
	store := &fakeStore{}
	e, cat := newTestEngine(t, org, store)
	rec := seedRecording(t, cat, models.Recording{AccountID: "AC1", OriginID: "RE1"})

	_, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	assert.ErrorIs(t, err, ErrMissingOriginReference)
	assert.Zero(t, org.downloadCalls)
	assert.Zero(t, store.putCalls)

	got, err := cat.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusError, got.Status)
	assert.NotEmpty(t, got.Metadata.MigrationError)
}

func TestMigrate_CredentialsUnavailable(t *testing.T) {
	store := &fakeStore{}
	e, cat := newTestEngine(t, nil, store)
	rec := seedRecording(t, cat, models.Recording{
		AccountID: "AC1", OriginID: "RE1", OriginURL: "https://origin/rec1",
	})

	_, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	assert.ErrorIs(t, err, ErrCredentialsUnavailable)
	assert.Zero(t, store.putCalls)
}

func TestMigrate_RetryBound(t *testing.T) {
	org := &fakeOrigin{payload: []byte("audio")}
	store := &fakeStore{failFirst: 10}
	e, cat := newTestEngine(t, org, store)
	rec := seedRecording(t, cat, models.Recording{
		AccountID: "AC1", OriginID: "RE1", OriginURL: "https://origin/rec1",
	})

	res, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	require.NoError(t, err, "exhausted retries are an expected failure, not an error")
	assert.False(t, res.Uploaded)
	assert.Equal(t, 3, store.putCalls, "exactly three upload attempts")
	assert.Zero(t, org.deleteCalls, "no delete without a durable copy")

	got, err := cat.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusError, got.Status)
	assert.Equal(t, 3, got.Metadata.UploadAttempts)
	assert.Equal(t, "storage unavailable", got.Metadata.LastUploadError)
	require.NotNil(t, got.Metadata.UploadFailedAt)
	assert.Empty(t, got.DurableURL, "failed retries never set the durable reference")
}

func TestMigrate_FailOnceSucceedSecond(t *testing.T) {
	org := &fakeOrigin{payload: []byte("audio")}
	store := &fakeStore{failFirst: 1}
	e, cat := newTestEngine(t, org, store)
	rec := seedRecording(t, cat, models.Recording{
		AccountID: "AC1", OriginID: "RE1", OriginURL: "https://origin/rec1",
	})

	res, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, res.Uploaded)
	assert.Equal(t, 2, store.putCalls, "exactly two upload attempts")

	got, err := cat.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusReady, got.Status)
	assert.NotNil(t, got.UploadedAt)
	assert.Equal(t, 2, got.Metadata.UploadAttempts)
}

func TestMigrate_DownloadFailureMarksError(t *testing.T) {
	org := &fakeOrigin{downloadErr: errors.New("origin timeout")}
	store := &fakeStore{}
	e, cat := newTestEngine(t, org, store)
	rec := seedRecording(t, cat, models.Recording{
		AccountID: "AC1", OriginID: "RE1", OriginURL: "https://origin/rec1",
	})

	res, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, res.Uploaded)
	assert.Zero(t, store.putCalls)

	got, err := cat.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusError, got.Status)
	assert.Contains(t, got.Metadata.LastUploadError, "origin timeout")
}

func TestMigrate_OrderingInvariant(t *testing.T) {
	org := &fakeOrigin{payload: []byte("audio")}
	store := &fakeStore{}
	e, cat := newTestEngine(t, org, store)
	rec := seedRecording(t, cat, models.Recording{
		AccountID: "AC1", OriginID: "RE1", OriginURL: "https://origin/rec1",
	})

	_, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	require.NoError(t, err)

	got, err := cat.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UploadedAt)
	require.NotNil(t, got.OriginDeletedAt)
	assert.False(t, got.OriginDeletedAt.Before(*got.UploadedAt),
		"origin deletion must not precede the confirmed upload")
}

func TestMigrate_DeleteFailureKeepsReady(t *testing.T) {
	boom := errors.New("origin 500")
	org := &fakeOrigin{payload: []byte("audio"), deleteErrs: []error{boom, boom, boom}}
	store := &fakeStore{}
	e, cat := newTestEngine(t, org, store)
	rec := seedRecording(t, cat, models.Recording{
		AccountID: "AC1", OriginID: "RE1", OriginURL: "https://origin/rec1",
	})

	res, err := e.MigrateToDurableStore(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, res.Uploaded, "migration succeeds even when origin cleanup fails")

	got, err := cat.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusReady, got.Status)
	assert.Nil(t, got.OriginDeletedAt)
	assert.Equal(t, "origin 500", got.Metadata.LastDeleteError)
}
