// Package worker runs queued recording migrations in the background, so the
// webhook that announces a fresh recording can be acknowledged immediately.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/demonflare/fallowl/internal/transfer"
	"github.com/demonflare/fallowl/pkg/queue"
)

// MigrationProcessor consumes migration jobs and drives the transfer engine.
type MigrationProcessor struct {
	engine *transfer.Engine
	queue  *queue.Queue
	logger *zap.Logger
}

// NewMigrationProcessor creates a migration job processor.
func NewMigrationProcessor(engine *transfer.Engine, q *queue.Queue, logger *zap.Logger) *MigrationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MigrationProcessor{engine: engine, queue: q, logger: logger}
}

// Process executes one migration job. The engine's guard clauses make
// replayed jobs converge, so a job that raced a synchronous migration is a
// cheap no-op here.
func (p *MigrationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeMigrateRecording {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.MigrateRecordingPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	res, err := p.engine.MigrateToDurableStore(ctx, payload.RecordingID)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", payload.RecordingID, err)
	}
	if !res.Uploaded {
		return fmt.Errorf("migrate %s: upload did not complete", payload.RecordingID)
	}
	p.logger.Info("migration job completed",
		zap.String("recording_id", payload.RecordingID.String()),
		zap.String("durable_url", res.DurableURL))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns
// when ctx is cancelled.
func (p *MigrationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("migration worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
