package bots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colon-app/backend/internal/models"
)

const botColumns = `user_id, bot_id, bot_name, is_interactive_enabled, is_recording_enabled, trigger_mode, features, status, created_at, updated_at`

// Repository handles bot persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a bots repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns the user's bots, newest first.
func (r *Repository) List(ctx context.Context, userID string) ([]models.Bot, error) {
	q := `SELECT ` + botColumns + ` FROM bots WHERE user_id = $1 ORDER BY bot_id DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Bot{}
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *b)
	}
	return list, rows.Err()
}

// Get returns a bot owned by userID, or nil if it does not exist.
func (r *Repository) Get(ctx context.Context, userID, botID string) (*models.Bot, error) {
	q := `SELECT ` + botColumns + ` FROM bots WHERE user_id = $1 AND bot_id = $2`
	b, err := scanBot(r.pool.QueryRow(ctx, q, userID, botID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// Create inserts a new bot.
func (r *Repository) Create(ctx context.Context, b *models.Bot) error {
	features, err := marshalFeatures(b.Features)
	if err != nil {
		return err
	}
	const q = `INSERT INTO bots (` + botColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.pool.Exec(ctx, q, b.UserID, b.BotID, b.BotName, b.IsInteractiveEnabled, b.IsRecordingEnabled,
		b.TriggerMode, features, b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

// Update overwrites the editable fields of a bot. Status is left untouched.
func (r *Repository) Update(ctx context.Context, b *models.Bot) error {
	features, err := marshalFeatures(b.Features)
	if err != nil {
		return err
	}
	const q = `UPDATE bots SET bot_name = $3, is_interactive_enabled = $4, is_recording_enabled = $5,
		trigger_mode = $6, features = $7, updated_at = $8 WHERE user_id = $1 AND bot_id = $2`
	_, err = r.pool.Exec(ctx, q, b.UserID, b.BotID, b.BotName, b.IsInteractiveEnabled, b.IsRecordingEnabled,
		b.TriggerMode, features, b.UpdatedAt)
	return err
}

// Delete removes a bot.
func (r *Repository) Delete(ctx context.Context, userID, botID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM bots WHERE user_id = $1 AND bot_id = $2`, userID, botID)
	return err
}

// DeleteByUser removes every bot owned by userID.
func (r *Repository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM bots WHERE user_id = $1`, userID)
	return err
}

// SetStatus sets the bot status unconditionally.
func (r *Repository) SetStatus(ctx context.Context, userID, botID, status string) error {
	const q = `UPDATE bots SET status = $3, updated_at = NOW() WHERE user_id = $1 AND bot_id = $2`
	_, err := r.pool.Exec(ctx, q, userID, botID, status)
	return err
}

// TransitionStatus sets the bot status to `to` only when it is currently `from`.
func (r *Repository) TransitionStatus(ctx context.Context, userID, botID, from, to string) (bool, error) {
	const q = `UPDATE bots SET status = $4, updated_at = NOW() WHERE user_id = $1 AND bot_id = $2 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, userID, botID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanBot(row pgx.Row) (*models.Bot, error) {
	var b models.Bot
	var features []byte
	err := row.Scan(&b.UserID, &b.BotID, &b.BotName, &b.IsInteractiveEnabled, &b.IsRecordingEnabled,
		&b.TriggerMode, &features, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(features) > 0 {
		b.Features = &models.Features{}
		if err := json.Unmarshal(features, b.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
	}
	return &b, nil
}

func marshalFeatures(f *models.Features) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	return raw, nil
}
