package recordings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colon-app/backend/internal/models"
)

const recordingColumns = `user_id, recording_id, bot_id, bot_name, session_id, recall_bot_id, meeting_url, s3_key,
	file_size_mb, duration_seconds, status, started_at, ended_at, created_at`

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new recording. A second recording for the same session violates
// idx_recordings_session_id.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (` + recordingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.pool.Exec(ctx, q, rec.UserID, rec.RecordingID, rec.BotID, rec.BotName, rec.SessionID, rec.RecallBotID,
		rec.MeetingURL, rec.S3Key, rec.FileSizeMB, rec.DurationSeconds, rec.Status, rec.StartedAt, rec.EndedAt, rec.CreatedAt)
	return err
}

// Get returns a recording owned by userID, or nil.
func (r *Repository) Get(ctx context.Context, userID, recordingID string) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE user_id = $1 AND recording_id = $2`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, userID, recordingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// GetBySession returns the recording of a session, or nil.
func (r *Repository) GetBySession(ctx context.Context, userID, sessionID string) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE user_id = $1 AND session_id = $2`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, userID, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// List returns one page of the user's recordings, newest first, optionally narrowed to one bot.
func (r *Repository) List(ctx context.Context, userID string, q models.RecordingQuery) ([]models.Recording, string, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings
		WHERE user_id = $1 AND ($2 = '' OR bot_id = $2) AND ($3 = '' OR recording_id < $3)
		ORDER BY recording_id DESC LIMIT $4`
	rows, err := r.pool.Query(ctx, query, userID, q.BotID, q.After, q.Limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	list := []models.Recording{}
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, "", err
		}
		list = append(list, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(list) > q.Limit {
		list = list[:q.Limit]
		return list, list[len(list)-1].RecordingID, nil
	}
	return list, "", nil
}

// Delete removes a recording row.
func (r *Repository) Delete(ctx context.Context, userID, recordingID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM recordings WHERE user_id = $1 AND recording_id = $2`, userID, recordingID)
	return err
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.UserID, &rec.RecordingID, &rec.BotID, &rec.BotName, &rec.SessionID, &rec.RecallBotID,
		&rec.MeetingURL, &rec.S3Key, &rec.FileSizeMB, &rec.DurationSeconds, &rec.Status, &rec.StartedAt, &rec.EndedAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
