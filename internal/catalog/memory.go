package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/demonflare/fallowl/internal/models"
)

// MemoryStore is an in-memory catalog. It backs tests and single-process
// deployments that run without PostgreSQL.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[uuid.UUID]models.Recording
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[uuid.UUID]models.Recording)}
}

// Create stores a new recording, assigning its catalog key.
func (s *MemoryStore) Create(_ context.Context, rec *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = uuid.New()
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.recs[rec.ID] = *rec
	return nil
}

// GetByID returns a copy of the recording with the given catalog key.
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// GetByOriginID returns the recording with the given provider identifier.
func (s *MemoryStore) GetByOriginID(_ context.Context, accountID, originID string) (*models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.recs {
		if rec.AccountID == accountID && rec.OriginID == originID {
			r := rec
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

// ListByAccount returns recordings for an account, newest first.
func (s *MemoryStore) ListByAccount(_ context.Context, accountID string) ([]models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []models.Recording
	for _, rec := range s.recs {
		if rec.AccountID == accountID {
			list = append(list, rec)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// Update applies a partial update, merging metadata.
func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, patch models.RecordingPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.OriginURL != nil {
		rec.OriginURL = *patch.OriginURL
	}
	if patch.DurableURL != nil {
		rec.DurableURL = *patch.DurableURL
	}
	if patch.DurableKey != nil {
		rec.DurableKey = *patch.DurableKey
	}
	if patch.SizeBytes != nil {
		rec.SizeBytes = *patch.SizeBytes
	}
	if patch.DurationSeconds != nil {
		rec.DurationSeconds = *patch.DurationSeconds
	}
	if patch.UploadedAt != nil {
		rec.UploadedAt = patch.UploadedAt
	}
	if patch.OriginDeletedAt != nil {
		rec.OriginDeletedAt = patch.OriginDeletedAt
	}
	if patch.Metadata != nil {
		rec.Metadata = rec.Metadata.Merge(*patch.Metadata)
	}
	rec.UpdatedAt = time.Now()
	s.recs[id] = rec
	return nil
}
