package recordings

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/demonflare/fallowl/internal/catalog"
	"github.com/demonflare/fallowl/internal/models"
	"github.com/demonflare/fallowl/internal/notify"
	"github.com/demonflare/fallowl/pkg/queue"
	"github.com/demonflare/fallowl/pkg/response"
)

// RecordingReadyPayload is the provider callback body announcing a finished
// recording.
type RecordingReadyPayload struct {
	RecordingSID string `json:"recording_sid"`
	CallSID      string `json:"call_sid"`
	AccountSID   string `json:"account_sid"`
	RecordingURL string `json:"recording_url"`
	Duration     int    `json:"duration"`
	Channels     int    `json:"channels"`
	Source       string `json:"source"`
}

// WebhookHandler handles recording callbacks from the telephony provider.
type WebhookHandler struct {
	catalog  catalog.Store
	queue    *queue.Queue
	notifier notify.Publisher
	logger   *zap.Logger
}

// NewWebhookHandler creates a webhook handler. queue may be nil; the
// recording is then only cataloged and picked up by the next sync run.
func NewWebhookHandler(cat catalog.Store, q *queue.Queue, notifier notify.Publisher, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop()
	}
	return &WebhookHandler{catalog: cat, queue: q, notifier: notifier, logger: logger}
}

// RecordingReady handles POST /webhooks/recording-ready: upserts the catalog
// row and enqueues an asynchronous migration. Replayed webhooks for a known
// recording refresh the origin URL only.
func (h *WebhookHandler) RecordingReady(c *gin.Context) {
	var body RecordingReadyPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if body.RecordingSID == "" || body.AccountSID == "" {
		response.BadRequest(c, "recording_sid and account_sid required")
		return
	}
	if body.RecordingURL == "" {
		response.BadRequest(c, "recording_url required")
		return
	}

	ctx := c.Request.Context()
	rec, err := h.catalog.GetByOriginID(ctx, body.AccountSID, body.RecordingSID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		rec = &models.Recording{
			AccountID:       body.AccountSID,
			OriginID:        body.RecordingSID,
			CallID:          body.CallSID,
			OriginURL:       body.RecordingURL,
			DurationSeconds: body.Duration,
			Channels:        body.Channels,
			Source:          body.Source,
			Status:          models.RecordingStatusPending,
		}
		if err := h.catalog.Create(ctx, rec); err != nil {
			h.logger.Error("create recording failed", zap.Error(err))
			response.Internal(c, "failed to create recording")
			return
		}
		h.notifier.PublishRecordingEvent(ctx, rec.AccountID, notify.EventRecordingCreated, rec.ID)
	case err != nil:
		h.logger.Error("lookup recording failed", zap.Error(err))
		response.Internal(c, "failed to load recording")
		return
	case rec.OriginURL != body.RecordingURL:
		if err := h.catalog.Update(ctx, rec.ID, models.RecordingPatch{OriginURL: &body.RecordingURL}); err != nil {
			h.logger.Error("refresh origin url failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
			response.Internal(c, "failed to update recording")
			return
		}
	}

	if h.queue != nil && !rec.Migrated() {
		if err := h.queue.EnqueueMigration(ctx, queue.MigrateRecordingPayload{
			RecordingID: rec.ID,
			AccountID:   rec.AccountID,
		}); err != nil {
			h.logger.Error("enqueue migration failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
			response.Internal(c, "failed to enqueue migration")
			return
		}
	}

	h.logger.Info("recording-ready webhook processed",
		zap.String("recording_id", rec.ID.String()),
		zap.String("origin_id", body.RecordingSID))
	response.OK(c, gin.H{"recording_id": rec.ID, "status": rec.Status})
}
