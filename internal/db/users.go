package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// UserRepository reads recipient records and their channel preferences.
// The pipeline never writes users; preference management lives elsewhere.
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetUser retrieves a user by ID
func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT
			id, name, email, email_notifications, push_notifications,
			push_endpoint_arn, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.EmailNotifications,
		&user.PushNotifications,
		&user.PushEndpointARN,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	if err != nil {
		r.logger.Error("failed to get user",
			zap.Error(err),
			zap.String("user_id", id.String()),
		)
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}
