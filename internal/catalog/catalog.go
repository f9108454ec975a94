// Package catalog persists recording lifecycle state. Every pipeline step
// reads the current row before writing, so a crashed or duplicated run
// converges instead of corrupting state.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/demonflare/fallowl/internal/models"
)

// ErrNotFound is returned when no recording matches the lookup.
var ErrNotFound = errors.New("catalog: recording not found")

// Store is the catalog persistence interface. Update merges metadata rather
// than replacing it, so concurrent writers keep each other's diagnostics.
type Store interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	GetByOriginID(ctx context.Context, accountID, originID string) (*models.Recording, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Recording, error)
	Update(ctx context.Context, id uuid.UUID, patch models.RecordingPatch) error
}
