// Package worker runs background jobs: ingest retries and session expiry.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/store"
	"github.com/colon-app/backend/pkg/queue"
)

// JobQueue is the retry queue consumed by the worker.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Ingestor re-runs a recording transfer.
type Ingestor interface {
	Ingest(ctx context.Context, p queue.RecordingIngestPayload) (*models.Recording, error)
}

// RecordingProcessor processes recording ingest jobs: download from the provider, upload to S3, update DB.
type RecordingProcessor struct {
	ingestor Ingestor
	queue    JobQueue
	backoff  time.Duration
	logger   *zap.Logger
}

// NewRecordingProcessor creates a recording ingest processor.
func NewRecordingProcessor(ingestor Ingestor, q JobQueue, logger *zap.Logger) *RecordingProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingProcessor{ingestor: ingestor, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one recording ingest job.
func (p *RecordingProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRecordingIngest {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RecordingIngestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	rec, err := p.ingestor.Ingest(ctx, payload)
	if err != nil {
		return err
	}
	if rec != nil {
		p.logger.Info("recording ingest completed", zap.String("job_id", job.ID), zap.String("recording_id", rec.RecordingID))
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *RecordingProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("recording worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *RecordingProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SessionPruner deletes sessions whose retention window has passed, along with their meeting events.
type SessionPruner struct {
	sessions store.Sessions
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionPruner creates a pruner running every interval.
func NewSessionPruner(sessions store.Sessions, interval time.Duration, logger *zap.Logger) *SessionPruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionPruner{sessions: sessions, interval: interval, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// PruneOnce deletes expired sessions and returns how many were removed.
func (s *SessionPruner) PruneOnce(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired sessions pruned", zap.Int64("count", n))
	}
	return n, nil
}

// Run prunes immediately and then on every tick until ctx is done.
func (s *SessionPruner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.PruneOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("session prune failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("session pruner stopping")
			return
		case <-ticker.C:
		}
	}
}
