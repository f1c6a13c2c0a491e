package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colon-app/backend/internal/models"
)

const sessionColumns = `bot_id, session_id, user_id, meeting_url, recall_bot_id, status, joined_at, left_at, ended_at, recording_id, expires_at, created_at`

// Repository handles bot session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a session. The partial unique index rejects a second active session for the same bot.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO bot_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.pool.Exec(ctx, q, s.BotID, s.SessionID, s.UserID, s.MeetingURL, s.RecallBotID, s.Status,
		s.JoinedAt, s.LeftAt, s.EndedAt, s.RecordingID, s.ExpiresAt, s.CreatedAt)
	return err
}

// Get returns a session by key, or nil.
func (r *Repository) Get(ctx context.Context, botID, sessionID string) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM bot_sessions WHERE bot_id = $1 AND session_id = $2`
	return oneSession(r.pool.QueryRow(ctx, q, botID, sessionID))
}

// GetActive returns the joining or in-meeting session of a bot, or nil.
func (r *Repository) GetActive(ctx context.Context, botID string) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM bot_sessions
		WHERE bot_id = $1 AND status IN ('joining', 'in_meeting')
		ORDER BY session_id DESC LIMIT 1`
	return oneSession(r.pool.QueryRow(ctx, q, botID))
}

// GetByRecallBotID resolves the session created for a provider bot, or nil.
func (r *Repository) GetByRecallBotID(ctx context.Context, recallBotID string) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM bot_sessions WHERE recall_bot_id = $1 ORDER BY session_id DESC LIMIT 1`
	return oneSession(r.pool.QueryRow(ctx, q, recallBotID))
}

// MarkLeaving moves a session to leaving and schedules its expiry.
func (r *Repository) MarkLeaving(ctx context.Context, botID, sessionID string, leftAt, expiresAt time.Time) error {
	const q = `UPDATE bot_sessions SET status = 'leaving', left_at = $3, expires_at = $4
		WHERE bot_id = $1 AND session_id = $2`
	_, err := r.pool.Exec(ctx, q, botID, sessionID, leftAt, expiresAt)
	return err
}

// MarkCompleted links the recording to the session and schedules its expiry.
func (r *Repository) MarkCompleted(ctx context.Context, botID, sessionID, recordingID string, endedAt, expiresAt time.Time) error {
	const q = `UPDATE bot_sessions SET status = 'completed', ended_at = $3, recording_id = $4, expires_at = $5
		WHERE bot_id = $1 AND session_id = $2`
	_, err := r.pool.Exec(ctx, q, botID, sessionID, endedAt, recordingID, expiresAt)
	return err
}

// DeleteByUser removes every session owned by userID. Events go with them via the foreign key.
func (r *Repository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM bot_sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteEndedByBot removes the bot's completed and ended sessions. Leaving sessions stay
// until their bot.done arrives or they expire.
func (r *Repository) DeleteEndedByBot(ctx context.Context, userID, botID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM bot_sessions
		WHERE user_id = $1 AND bot_id = $2 AND status IN ('completed', 'ended')`, userID, botID)
	return err
}

// DeleteExpired removes sessions whose expiry is before now.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bot_sessions WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func oneSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.BotID, &s.SessionID, &s.UserID, &s.MeetingURL, &s.RecallBotID, &s.Status,
		&s.JoinedAt, &s.LeftAt, &s.EndedAt, &s.RecordingID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
