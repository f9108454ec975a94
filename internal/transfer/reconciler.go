package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/demonflare/fallowl/internal/catalog"
	"github.com/demonflare/fallowl/internal/models"
	"github.com/demonflare/fallowl/internal/notify"
	"github.com/demonflare/fallowl/internal/origin"
)

// Reconciler removes the origin copy of a recording once its durable copy is
// confirmed. Failure here is a storage-cost concern, never a correctness one:
// the recording stays ready regardless.
type Reconciler struct {
	catalog     catalog.Store
	origin      OriginClient
	notifier    notify.Publisher
	logger      *zap.Logger
	maxAttempts int
	backoffBase time.Duration
	sleep       func(time.Duration)
}

// NewReconciler creates a deletion reconciler. notifier may be nil.
func NewReconciler(cat catalog.Store, originClient OriginClient, notifier notify.Publisher, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop()
	}
	return &Reconciler{
		catalog:     cat,
		origin:      originClient,
		notifier:    notifier,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultDeleteBackoff,
		sleep:       time.Sleep,
	}
}

// SetBackoff overrides the delete backoff base. Zero disables the pause.
func (r *Reconciler) SetBackoff(base time.Duration) { r.backoffBase = base }

// DeleteOrigin removes the provider-side copy. It returns true when the
// origin no longer holds the artifact, whether this call removed it, a prior
// call did, or the provider had already expired it. It refuses to run before
// the upload is confirmed in the catalog.
func (r *Reconciler) DeleteOrigin(ctx context.Context, recordingID uuid.UUID) (bool, error) {
	rec, err := r.catalog.GetByID(ctx, recordingID)
	if err != nil {
		return false, err
	}
	if rec.OriginDeletedAt != nil {
		return true, nil
	}
	if rec.UploadedAt == nil {
		return false, ErrUploadNotConfirmed
	}
	if r.origin == nil {
		return false, ErrCredentialsUnavailable
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		attempts = attempt
		lastErr = r.origin.Delete(ctx, rec.OriginID)
		if lastErr == nil {
			break
		}
		// Already gone at the provider counts as success: deletion replayed
		// against an empty origin must converge, not fail.
		if errors.Is(lastErr, origin.ErrRecordingNotFound) {
			r.logger.Debug("origin recording already gone",
				zap.String("recording_id", rec.ID.String()),
				zap.String("origin_id", rec.OriginID))
			lastErr = nil
			break
		}
		r.logger.Warn("origin delete attempt failed",
			zap.String("recording_id", rec.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < r.maxAttempts {
			r.sleep(r.backoffBase * time.Duration(attempt))
		}
	}

	now := time.Now()
	if lastErr != nil {
		if err := r.catalog.Update(ctx, rec.ID, models.RecordingPatch{
			Metadata: &models.Metadata{
				DeleteAttempts:  attempts,
				LastDeleteError: lastErr.Error(),
				LastDeleteAt:    &now,
			},
		}); err != nil {
			r.logger.Error("persist delete failure", zap.String("recording_id", rec.ID.String()), zap.Error(err))
		}
		return false, nil
	}

	if err := r.catalog.Update(ctx, rec.ID, models.RecordingPatch{
		OriginDeletedAt: &now,
		Metadata:        &models.Metadata{DeleteAttempts: attempts, LastDeleteAt: &now},
	}); err != nil {
		return false, err
	}
	r.logger.Info("origin copy deleted",
		zap.String("recording_id", rec.ID.String()),
		zap.String("origin_id", rec.OriginID),
		zap.Int("attempts", attempts))
	r.notifier.PublishRecordingEvent(ctx, rec.AccountID, notify.EventOriginDeleted, rec.ID)
	return true, nil
}
