package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colon-app/backend/internal/models"
)

const userColumns = `user_id, email, display_name, avatar_url, language, created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns a user by ID, or nil.
func (r *Repository) Get(ctx context.Context, userID string) (*models.User, error) {
	return oneUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
}

// Create inserts u unless the user exists and returns the stored row either way.
func (r *Repository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	const q = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, u.UserID, u.Email, u.DisplayName, u.AvatarURL, u.Language, u.CreatedAt, u.UpdatedAt); err != nil {
		return nil, err
	}
	return r.Get(ctx, u.UserID)
}

// UpdateLanguage sets the UI language and returns the updated user, or nil if it does not exist.
func (r *Repository) UpdateLanguage(ctx context.Context, userID, language string) (*models.User, error) {
	const q = `UPDATE users SET language = $2, updated_at = NOW() WHERE user_id = $1 RETURNING ` + userColumns
	return oneUser(r.pool.QueryRow(ctx, q, userID, language))
}

// Delete removes a user.
func (r *Repository) Delete(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	return err
}

func oneUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.Language, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
