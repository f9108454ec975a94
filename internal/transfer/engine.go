// Package transfer moves one recording from the origin store to the durable
// store and reconciles the now-redundant origin copy afterwards. Both sides
// are untrusted remote systems; the catalog is updated at every transition
// so a crash at any point leaves a resumable state.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/demonflare/fallowl/internal/catalog"
	"github.com/demonflare/fallowl/internal/durable"
	"github.com/demonflare/fallowl/internal/models"
	"github.com/demonflare/fallowl/internal/notify"
)

const (
	// DefaultMaxAttempts bounds remote upload and delete tries.
	DefaultMaxAttempts = 3
	// DefaultUploadBackoff is the upload backoff base: delay = base * attempt.
	DefaultUploadBackoff = 2 * time.Second
	// DefaultDeleteBackoff is the delete backoff base.
	DefaultDeleteBackoff = time.Second

	recordingContentType = "audio/mpeg"
)

// OriginClient is the provider-side surface the engine needs.
type OriginClient interface {
	Download(ctx context.Context, mediaURL string) ([]byte, error)
	Delete(ctx context.Context, recordingID string) error
}

// DurableStore is the destination-side surface the engine needs.
type DurableStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Result reports the outcome of one migration call. Expected failures set
// Uploaded=false without an error; callers check the boolean.
type Result struct {
	Uploaded   bool   `json:"uploaded"`
	DurableURL string `json:"durable_url,omitempty"`
}

// Engine relocates recordings into the durable store.
type Engine struct {
	catalog     catalog.Store
	origin      OriginClient
	store       DurableStore
	reconciler  *Reconciler
	notifier    notify.Publisher
	logger      *zap.Logger
	maxAttempts int
	backoffBase time.Duration
	sleep       func(time.Duration)
}

// NewEngine creates a transfer engine. origin may be nil when provider
// credentials are not configured; migrations then fail terminally with
// ErrCredentialsUnavailable. notifier may be nil.
func NewEngine(cat catalog.Store, originClient OriginClient, store DurableStore, notifier notify.Publisher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop()
	}
	e := &Engine{
		catalog:     cat,
		origin:      originClient,
		store:       store,
		notifier:    notifier,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultUploadBackoff,
		sleep:       time.Sleep,
	}
	e.reconciler = NewReconciler(cat, originClient, notifier, logger)
	return e
}

// SetBackoff overrides the upload backoff base. Zero disables the pause.
func (e *Engine) SetBackoff(base time.Duration) { e.backoffBase = base }

// Reconciler returns the deletion reconciler sharing this engine's clients.
func (e *Engine) Reconciler() *Reconciler { return e.reconciler }

// MigrateToDurableStore downloads the recording from the origin, uploads it
// to the durable store, persists the durable reference, and then asks the
// reconciler to remove the origin copy. A recording that already has a
// confirmed durable copy is returned as-is with no remote calls.
func (e *Engine) MigrateToDurableStore(ctx context.Context, recordingID uuid.UUID) (Result, error) {
	rec, err := e.catalog.GetByID(ctx, recordingID)
	if err != nil {
		return Result{}, err
	}

	// Idempotence fast path: re-running a finished migration is a no-op.
	if rec.Migrated() {
		e.logger.Debug("recording already migrated",
			zap.String("recording_id", rec.ID.String()), zap.String("durable_url", rec.DurableURL))
		return Result{Uploaded: true, DurableURL: rec.DurableURL}, nil
	}
	if rec.OriginURL == "" {
		e.recordTerminal(ctx, rec.ID, "missing origin reference")
		return Result{}, ErrMissingOriginReference
	}
	if e.origin == nil {
		e.recordTerminal(ctx, rec.ID, "origin credentials unavailable")
		return Result{}, ErrCredentialsUnavailable
	}

	processing := models.RecordingStatusProcessing
	if err := e.catalog.Update(ctx, rec.ID, models.RecordingPatch{Status: &processing}); err != nil {
		return Result{}, err
	}

	data, err := e.origin.Download(ctx, rec.OriginURL)
	if err != nil {
		e.logger.Warn("origin download failed",
			zap.String("recording_id", rec.ID.String()), zap.Error(err))
		e.recordFailure(ctx, rec.ID, 0, err)
		return Result{Uploaded: false}, nil
	}

	key := durable.RecordingKey(rec.AccountID, rec.OriginID)
	var durableURL string
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		attempts = attempt
		durableURL, lastErr = e.store.Put(ctx, key, recordingContentType, data)
		if lastErr == nil {
			break
		}
		e.logger.Warn("durable upload attempt failed",
			zap.String("recording_id", rec.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < e.maxAttempts {
			e.sleep(e.backoffBase * time.Duration(attempt))
		}
	}
	if lastErr != nil {
		e.recordFailure(ctx, rec.ID, attempts, lastErr)
		return Result{Uploaded: false}, nil
	}

	// The durable reference must be persisted before deletion is even
	// considered; this write is the pipeline's point of no return.
	now := time.Now()
	ready := models.RecordingStatusReady
	size := int64(len(data))
	if err := e.catalog.Update(ctx, rec.ID, models.RecordingPatch{
		Status:     &ready,
		DurableURL: &durableURL,
		DurableKey: &key,
		SizeBytes:  &size,
		UploadedAt: &now,
		Metadata:   &models.Metadata{UploadAttempts: attempts},
	}); err != nil {
		return Result{}, err
	}
	e.logger.Info("recording migrated",
		zap.String("recording_id", rec.ID.String()),
		zap.String("durable_key", key),
		zap.Int64("size_bytes", size),
		zap.Int("attempts", attempts))
	e.notifier.PublishRecordingEvent(ctx, rec.AccountID, notify.EventRecordingMigrated, rec.ID)

	if _, err := e.reconciler.DeleteOrigin(ctx, rec.ID); err != nil && !errors.Is(err, ErrUploadNotConfirmed) {
		e.logger.Warn("origin cleanup failed after migration",
			zap.String("recording_id", rec.ID.String()), zap.Error(err))
	}
	return Result{Uploaded: true, DurableURL: durableURL}, nil
}

func (e *Engine) recordTerminal(ctx context.Context, id uuid.UUID, msg string) {
	status := models.RecordingStatusError
	if err := e.catalog.Update(ctx, id, models.RecordingPatch{
		Status:   &status,
		Metadata: &models.Metadata{MigrationError: msg},
	}); err != nil {
		e.logger.Error("persist terminal failure", zap.String("recording_id", id.String()), zap.Error(err))
	}
}

func (e *Engine) recordFailure(ctx context.Context, id uuid.UUID, attempts int, cause error) {
	now := time.Now()
	status := models.RecordingStatusError
	if err := e.catalog.Update(ctx, id, models.RecordingPatch{
		Status: &status,
		Metadata: &models.Metadata{
			UploadAttempts:  attempts,
			LastUploadError: cause.Error(),
			UploadFailedAt:  &now,
		},
	}); err != nil {
		e.logger.Error("persist upload failure", zap.String("recording_id", id.String()), zap.Error(err))
	}
}
