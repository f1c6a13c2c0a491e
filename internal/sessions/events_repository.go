package sessions

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colon-app/backend/internal/models"
)

const eventColumns = `session_id, event_id, bot_id, user_id, event_type, speaker_name, content, language, is_final, timestamp, created_at`

// EventRepository persists meeting events.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a meeting events repository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append stores one event.
func (r *EventRepository) Append(ctx context.Context, e *models.MeetingEvent) error {
	const q = `INSERT INTO meeting_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, q, e.SessionID, e.EventID, e.BotID, e.UserID, e.EventType, e.SpeakerName,
		e.Content, e.Language, e.IsFinal, e.Timestamp, e.CreatedAt)
	return err
}

// List returns events of a session in chronological order, starting after q.After.
func (r *EventRepository) List(ctx context.Context, sessionID string, q models.EventQuery) ([]models.MeetingEvent, string, error) {
	query := `SELECT ` + eventColumns + ` FROM meeting_events
		WHERE session_id = $1 AND event_id > $2 AND ($3 = '' OR event_type = $3)
		ORDER BY event_id ASC LIMIT $4`
	rows, err := r.pool.Query(ctx, query, sessionID, q.After, q.EventType, q.Limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	list := []models.MeetingEvent{}
	for rows.Next() {
		var e models.MeetingEvent
		if err := rows.Scan(&e.SessionID, &e.EventID, &e.BotID, &e.UserID, &e.EventType, &e.SpeakerName,
			&e.Content, &e.Language, &e.IsFinal, &e.Timestamp, &e.CreatedAt); err != nil {
			return nil, "", err
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(list) > q.Limit {
		list = list[:q.Limit]
		return list, list[len(list)-1].EventID, nil
	}
	return list, "", nil
}

// DeleteByUser removes every event owned by userID.
func (r *EventRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM meeting_events WHERE user_id = $1`, userID)
	return err
}
