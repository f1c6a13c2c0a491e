package recordings

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/store"
)

const purgePageSize = 100

// ObjectDeleter removes stored media.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Purger deletes recordings together with their media.
type Purger struct {
	recordings store.Recordings
	objects    ObjectDeleter
	logger     *zap.Logger
}

// NewPurger creates a purger.
func NewPurger(recordings store.Recordings, objects ObjectDeleter, logger *zap.Logger) *Purger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Purger{recordings: recordings, objects: objects, logger: logger}
}

// DeleteOne removes the media object first and the metadata second, so a failed
// storage call leaves the record in place for a retry.
func (p *Purger) DeleteOne(ctx context.Context, rec *models.Recording) error {
	if rec.S3Key != "" {
		if err := p.objects.Delete(ctx, rec.S3Key); err != nil {
			return fmt.Errorf("delete media %s: %w", rec.RecordingID, err)
		}
	}
	if err := p.recordings.Delete(ctx, rec.UserID, rec.RecordingID); err != nil {
		return fmt.Errorf("delete recording %s: %w", rec.RecordingID, err)
	}
	return nil
}

// PurgeUser deletes every recording of userID, or only botID's when botID is set.
// It stops at the first failure and reports how many recordings were removed.
func (p *Purger) PurgeUser(ctx context.Context, userID, botID string) (int, error) {
	deleted := 0
	for {
		page, _, err := p.recordings.List(ctx, userID, models.RecordingQuery{BotID: botID, Limit: purgePageSize})
		if err != nil {
			return deleted, fmt.Errorf("list recordings: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for i := range page {
			if err := p.DeleteOne(ctx, &page[i]); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	p.logger.Info("recordings purged", zap.String("user_id", userID), zap.String("bot_id", botID), zap.Int("count", deleted))
	return deleted, nil
}
