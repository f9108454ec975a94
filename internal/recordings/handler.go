// Package recordings exposes the migration pipeline over HTTP for the
// dialer UI and operator tooling.
package recordings

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/demonflare/fallowl/internal/catalog"
	"github.com/demonflare/fallowl/internal/inventory"
	"github.com/demonflare/fallowl/internal/models"
	"github.com/demonflare/fallowl/internal/signing"
	"github.com/demonflare/fallowl/internal/syncer"
	"github.com/demonflare/fallowl/internal/transfer"
	"github.com/demonflare/fallowl/pkg/response"
)

// Handler handles recording pipeline HTTP endpoints.
type Handler struct {
	catalog      catalog.Store
	orchestrator *syncer.Orchestrator
	engine       *transfer.Engine
	signer       *signing.Signer
	inventory    *inventory.Service
	logger       *zap.Logger
}

// NewHandler creates a recordings handler. orchestrator, engine, and
// inventory may be nil when the matching collaborator is not configured;
// the affected endpoints then answer 503.
func NewHandler(cat catalog.Store, orch *syncer.Orchestrator, engine *transfer.Engine, signer *signing.Signer, inv *inventory.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{catalog: cat, orchestrator: orch, engine: engine, signer: signer, inventory: inv, logger: logger}
}

// Sync handles POST /accounts/:id/sync. Body is the sync options; an empty
// body runs a plain discovery pass.
func (h *Handler) Sync(c *gin.Context) {
	if h.orchestrator == nil {
		response.ServiceUnavailable(c, "origin provider not configured")
		return
	}
	accountID := c.Param("id")
	var opts syncer.Options
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	result, err := h.orchestrator.Sync(c.Request.Context(), accountID, opts)
	if err != nil {
		h.logger.Error("sync failed", zap.Error(err), zap.String("account_id", accountID))
		response.Internal(c, "sync failed")
		return
	}
	response.OK(c, result)
}

// List handles GET /accounts/:id/recordings.
func (h *Handler) List(c *gin.Context) {
	list, err := h.catalog.ListByAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	response.OK(c, rec)
}

// Migrate handles POST /recordings/:id/migrate: relocate one recording to
// the durable store synchronously.
func (h *Handler) Migrate(c *gin.Context) {
	if h.engine == nil {
		response.ServiceUnavailable(c, "durable store not configured")
		return
	}
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	result, err := h.engine.MigrateToDurableStore(c.Request.Context(), rec.ID)
	switch {
	case errors.Is(err, transfer.ErrMissingOriginReference),
		errors.Is(err, transfer.ErrCredentialsUnavailable):
		response.UnprocessableEntity(c, err.Error())
		return
	case err != nil:
		h.logger.Error("migrate failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "migration failed")
		return
	}
	response.OK(c, result)
}

// DeleteOrigin handles POST /recordings/:id/delete-origin: retry origin
// cleanup for an already-migrated recording.
func (h *Handler) DeleteOrigin(c *gin.Context) {
	if h.engine == nil {
		response.ServiceUnavailable(c, "origin provider not configured")
		return
	}
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	deleted, err := h.engine.Reconciler().DeleteOrigin(c.Request.Context(), rec.ID)
	if errors.Is(err, transfer.ErrUploadNotConfirmed) {
		response.UnprocessableEntity(c, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("origin delete failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "origin delete failed")
		return
	}
	response.OK(c, gin.H{"deleted": deleted})
}

// SignedURL handles GET /recordings/:id/signed-url?expires_in=3600&ip=1.2.3.4.
func (h *Handler) SignedURL(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	if rec.DurableURL == "" {
		response.UnprocessableEntity(c, "recording has no durable copy yet")
		return
	}
	opts := signing.Options{IPAddress: c.Query("ip")}
	if v := c.Query("expires_in"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			response.BadRequest(c, "invalid expires_in")
			return
		}
		opts.ExpiresIn = time.Duration(secs) * time.Second
	}
	url, err := h.signer.SignURL(rec.DurableURL, opts)
	if err != nil {
		h.logger.Error("sign url failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to sign url")
		return
	}
	response.OK(c, gin.H{"url": url})
}

// StorageFiles handles GET /storage/files?prefix=.
func (h *Handler) StorageFiles(c *gin.Context) {
	if h.inventory == nil {
		response.ServiceUnavailable(c, "durable store not configured")
		return
	}
	files, err := h.inventory.ListRecordingFiles(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		h.logger.Error("list storage files failed", zap.Error(err))
		response.Internal(c, "failed to list files")
		return
	}
	response.OK(c, files)
}

// StorageUsage handles GET /storage/usage.
func (h *Handler) StorageUsage(c *gin.Context) {
	if h.inventory == nil {
		response.ServiceUnavailable(c, "durable store not configured")
		return
	}
	usage, err := h.inventory.AggregateUsage(c.Request.Context())
	if err != nil {
		h.logger.Error("aggregate usage failed", zap.Error(err))
		response.Internal(c, "failed to aggregate usage")
		return
	}
	response.OK(c, usage)
}

// PurgeCache handles POST /storage/purge with optional body {"url": "..."}.
func (h *Handler) PurgeCache(c *gin.Context) {
	if h.inventory == nil {
		response.ServiceUnavailable(c, "cdn not configured")
		return
	}
	var body struct {
		URL string `json:"url"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	purged := h.inventory.PurgeCache(c.Request.Context(), body.URL)
	response.OK(c, gin.H{"purged": purged})
}

func (h *Handler) lookup(c *gin.Context) (rec *models.Recording, ok bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return nil, false
	}
	r, err := h.catalog.GetByID(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		response.NotFound(c, "recording not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get recording failed", zap.Error(err))
		response.Internal(c, "failed to load recording")
		return nil, false
	}
	return r, true
}
