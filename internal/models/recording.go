package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents the recording migration lifecycle.
const (
	RecordingStatusPending    = "pending"
	RecordingStatusProcessing = "processing"
	RecordingStatusReady      = "ready"
	RecordingStatusError      = "error"
)

// Recording is a call recording tracked from the telephony provider (origin)
// to the CDN-backed durable store. The catalog row is the single source of
// truth for where the binary currently lives.
type Recording struct {
	ID              uuid.UUID  `json:"id"`
	AccountID       string     `json:"account_id"`
	OriginID        string     `json:"origin_id"`
	CallID          string     `json:"call_id,omitempty"`
	OriginURL       string     `json:"origin_url,omitempty"`
	DurableURL      string     `json:"durable_url,omitempty"`
	DurableKey      string     `json:"durable_key,omitempty"`
	SizeBytes       int64      `json:"size_bytes"`
	DurationSeconds int        `json:"duration_seconds"`
	Channels        int        `json:"channels,omitempty"`
	Source          string     `json:"source,omitempty"`
	Status          string     `json:"status"`
	UploadedAt      *time.Time `json:"uploaded_at,omitempty"`
	OriginDeletedAt *time.Time `json:"origin_deleted_at,omitempty"`
	Metadata        Metadata   `json:"metadata"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Migrated reports whether a durable copy exists and has been confirmed.
// Origin deletion is only legal once this is true.
func (r *Recording) Migrated() bool {
	return r.DurableURL != "" && r.UploadedAt != nil
}

// Metadata holds diagnostic and audit fields for a recording. Known fields
// are typed; Extra carries anything else the orchestration layer attaches.
type Metadata struct {
	UploadAttempts  int               `json:"upload_attempts,omitempty"`
	LastUploadError string            `json:"last_upload_error,omitempty"`
	UploadFailedAt  *time.Time        `json:"upload_failed_at,omitempty"`
	DeleteAttempts  int               `json:"delete_attempts,omitempty"`
	LastDeleteError string            `json:"last_delete_error,omitempty"`
	LastDeleteAt    *time.Time        `json:"last_delete_at,omitempty"`
	MigrationError  string            `json:"migration_error,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// Merge overlays non-zero fields of patch onto m. Extra keys are merged
// individually so a writer does not clobber entries it never touched.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := m
	if patch.UploadAttempts != 0 {
		out.UploadAttempts = patch.UploadAttempts
	}
	if patch.LastUploadError != "" {
		out.LastUploadError = patch.LastUploadError
	}
	if patch.UploadFailedAt != nil {
		out.UploadFailedAt = patch.UploadFailedAt
	}
	if patch.DeleteAttempts != 0 {
		out.DeleteAttempts = patch.DeleteAttempts
	}
	if patch.LastDeleteError != "" {
		out.LastDeleteError = patch.LastDeleteError
	}
	if patch.LastDeleteAt != nil {
		out.LastDeleteAt = patch.LastDeleteAt
	}
	if patch.MigrationError != "" {
		out.MigrationError = patch.MigrationError
	}
	if len(patch.Extra) > 0 {
		// Fresh map: writing into m.Extra would alias every copy of m.
		merged := make(map[string]string, len(m.Extra)+len(patch.Extra))
		for k, v := range m.Extra {
			merged[k] = v
		}
		for k, v := range patch.Extra {
			merged[k] = v
		}
		out.Extra = merged
	}
	return out
}

// RecordingPatch is a partial update applied through the catalog. Nil fields
// are left untouched; Metadata is merged, never replaced.
type RecordingPatch struct {
	Status          *string
	OriginURL       *string
	DurableURL      *string
	DurableKey      *string
	SizeBytes       *int64
	DurationSeconds *int
	UploadedAt      *time.Time
	OriginDeletedAt *time.Time
	Metadata        *Metadata
}
