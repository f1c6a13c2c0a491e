// Package store declares the persistence contracts shared by handlers and the worker.
// Every lookup returns (nil, nil) when the record does not exist.
package store

import (
	"context"
	"time"

	"github.com/colon-app/backend/internal/models"
)

// Users persists user accounts.
type Users interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	// Create inserts u unless the user already exists; it returns the stored row.
	Create(ctx context.Context, u *models.User) (*models.User, error)
	UpdateLanguage(ctx context.Context, userID, language string) (*models.User, error)
	Delete(ctx context.Context, userID string) error
}

// Bots persists bot configurations keyed by (owner, bot id).
type Bots interface {
	List(ctx context.Context, userID string) ([]models.Bot, error)
	Get(ctx context.Context, userID, botID string) (*models.Bot, error)
	Create(ctx context.Context, b *models.Bot) error
	Update(ctx context.Context, b *models.Bot) error
	Delete(ctx context.Context, userID, botID string) error
	DeleteByUser(ctx context.Context, userID string) error
	SetStatus(ctx context.Context, userID, botID, status string) error
	// TransitionStatus sets status to `to` only if it currently equals `from`.
	TransitionStatus(ctx context.Context, userID, botID, from, to string) (bool, error)
}

// Sessions persists bot sessions keyed by (bot id, session id).
type Sessions interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, botID, sessionID string) (*models.Session, error)
	GetActive(ctx context.Context, botID string) (*models.Session, error)
	GetByRecallBotID(ctx context.Context, recallBotID string) (*models.Session, error)
	MarkLeaving(ctx context.Context, botID, sessionID string, leftAt, expiresAt time.Time) error
	MarkCompleted(ctx context.Context, botID, sessionID, recordingID string, endedAt, expiresAt time.Time) error
	DeleteByUser(ctx context.Context, userID string) error
	// DeleteEndedByBot removes the bot's completed and ended sessions, with their events.
	DeleteEndedByBot(ctx context.Context, userID, botID string) error
	// DeleteExpired removes sessions whose expiry passed before now, with their events.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Events persists meeting events keyed by (session id, event id).
type Events interface {
	Append(ctx context.Context, e *models.MeetingEvent) error
	// List returns events after q.After in ascending order and the id to continue from, or "".
	List(ctx context.Context, sessionID string, q models.EventQuery) ([]models.MeetingEvent, string, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// Recordings persists recording metadata keyed by (owner, recording id).
type Recordings interface {
	// List returns a page newest first and the id to continue from, or "".
	List(ctx context.Context, userID string, q models.RecordingQuery) ([]models.Recording, string, error)
	Get(ctx context.Context, userID, recordingID string) (*models.Recording, error)
	// GetBySession returns the recording made of a session, or nil. A session has at most one.
	GetBySession(ctx context.Context, userID, sessionID string) (*models.Recording, error)
	Create(ctx context.Context, r *models.Recording) error
	Delete(ctx context.Context, userID, recordingID string) error
}
