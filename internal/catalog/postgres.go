package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/demonflare/fallowl/internal/models"
)

// PostgresStore persists recordings in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed catalog.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recordingColumns = `id, account_id, origin_id, COALESCE(call_id,''), COALESCE(origin_url,''), COALESCE(durable_url,''), COALESCE(durable_key,''),
	size_bytes, duration_seconds, channels, COALESCE(source,''), status, uploaded_at, origin_deleted_at, metadata, created_at, updated_at`

// Create inserts a new recording row.
func (s *PostgresStore) Create(ctx context.Context, rec *models.Recording) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `INSERT INTO recordings (id, account_id, origin_id, call_id, origin_url, durable_url, durable_key, size_bytes, duration_seconds, channels, source, status, metadata)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`
	return s.pool.QueryRow(ctx, q,
		rec.AccountID, rec.OriginID, rec.CallID, rec.OriginURL, rec.DurableURL, rec.DurableKey,
		rec.SizeBytes, rec.DurationSeconds, rec.Channels, rec.Source, rec.Status, meta,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// GetByID returns a recording by catalog key.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	return s.scanOne(s.pool.QueryRow(ctx, q, id))
}

// GetByOriginID returns a recording by its provider-assigned identifier.
func (s *PostgresStore) GetByOriginID(ctx context.Context, accountID, originID string) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE account_id = $1 AND origin_id = $2`
	return s.scanOne(s.pool.QueryRow(ctx, q, accountID, originID))
}

// ListByAccount returns all recordings for an account, newest first.
func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE account_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// Update applies a partial update. NULL arguments keep the stored value;
// metadata is merged with the JSONB || operator so diagnostic fields written
// by other steps survive.
func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, patch models.RecordingPatch) error {
	var meta []byte
	if patch.Metadata != nil {
		var err error
		meta, err = json.Marshal(patch.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	const q = `UPDATE recordings SET
		status = COALESCE($1, status),
		origin_url = COALESCE($2, origin_url),
		durable_url = COALESCE($3, durable_url),
		durable_key = COALESCE($4, durable_key),
		size_bytes = COALESCE($5, size_bytes),
		duration_seconds = COALESCE($6, duration_seconds),
		uploaded_at = COALESCE($7, uploaded_at),
		origin_deleted_at = COALESCE($8, origin_deleted_at),
		metadata = metadata || COALESCE($9::jsonb, '{}'::jsonb),
		updated_at = NOW()
		WHERE id = $10`
	tag, err := s.pool.Exec(ctx, q,
		patch.Status, patch.OriginURL, patch.DurableURL, patch.DurableKey,
		patch.SizeBytes, patch.DurationSeconds, patch.UploadedAt, patch.OriginDeletedAt,
		meta, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type pgxRow interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row pgxRow) (*models.Recording, error) {
	rec, err := s.scanRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) scanRow(row pgxRow) (*models.Recording, error) {
	var rec models.Recording
	var meta []byte
	err := row.Scan(
		&rec.ID, &rec.AccountID, &rec.OriginID, &rec.CallID, &rec.OriginURL, &rec.DurableURL, &rec.DurableKey,
		&rec.SizeBytes, &rec.DurationSeconds, &rec.Channels, &rec.Source, &rec.Status,
		&rec.UploadedAt, &rec.OriginDeletedAt, &meta, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}
