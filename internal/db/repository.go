package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database operations for notifications
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new notification repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const notificationColumns = `
	id, recipient, type, title, message, related_query,
	is_read, read_at, channel_email, channel_push, channel_in_app,
	metadata, created_at, updated_at
`

func scanNotification(row pgx.Row, notif *Notification) error {
	return row.Scan(
		&notif.ID,
		&notif.Recipient,
		&notif.Type,
		&notif.Title,
		&notif.Message,
		&notif.RelatedQuery,
		&notif.IsRead,
		&notif.ReadAt,
		&notif.Channels.Email,
		&notif.Channels.Push,
		&notif.Channels.InApp,
		&notif.Metadata,
		&notif.CreatedAt,
		&notif.UpdatedAt,
	)
}

// CreateNotification inserts a new notification into the database
func (r *Repository) CreateNotification(ctx context.Context, notif *Notification) error {
	query := `
		INSERT INTO notifications (
			id, recipient, type, title, message, related_query,
			channel_email, channel_push, channel_in_app, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING is_read, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		notif.ID,
		notif.Recipient,
		notif.Type,
		notif.Title,
		notif.Message,
		notif.RelatedQuery,
		notif.Channels.Email,
		notif.Channels.Push,
		notif.Channels.InApp,
		notif.Metadata,
	).Scan(&notif.IsRead, &notif.CreatedAt, &notif.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	r.logger.Info("notification created",
		zap.String("notification_id", notif.ID.String()),
		zap.String("recipient", notif.Recipient.String()),
		zap.String("type", notif.Type),
	)

	return nil
}

// GetNotification retrieves a notification owned by userID. A missing or
// foreign notification is indistinguishable from the caller's side: both
// come back as ErrNotFound.
func (r *Repository) GetNotification(ctx context.Context, id, userID uuid.UUID) (*Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1 AND recipient = $2
	`

	var notif Notification
	err := scanNotification(r.db.Pool().QueryRow(ctx, query, id, userID), &notif)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}

	if err != nil {
		r.logger.Error("failed to get notification",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return &notif, nil
}

// MarkRead flips an unread notification to read and stamps read_at.
// Rows that are already read are left untouched; the caller decides
// whether that is a no-op or an error.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) (*Notification, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND recipient = $2 AND is_read = FALSE
		RETURNING ` + notificationColumns

	var notif Notification
	err := scanNotification(r.db.Pool().QueryRow(ctx, query, id, userID), &notif)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}

	if err != nil {
		r.logger.Error("failed to mark notification read",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return nil, fmt.Errorf("mark read: %w", err)
	}

	return &notif, nil
}

// MarkAllRead marks every unread notification owned by userID as read in
// one set-based update. Already-read rows keep their original read_at.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW(), updated_at = NOW()
		WHERE recipient = $1 AND is_read = FALSE
	`

	result, err := r.db.Pool().Exec(ctx, query, userID)
	if err != nil {
		r.logger.Error("failed to mark all notifications read",
			zap.Error(err),
			zap.String("recipient", userID.String()),
		)
		return fmt.Errorf("mark all read: %w", err)
	}

	r.logger.Info("notifications marked read",
		zap.String("recipient", userID.String()),
		zap.Int64("updated", result.RowsAffected()),
	)

	return nil
}

// ListByRecipient retrieves a page of notifications for a user, newest
// first, with the related query's display fields resolved when present.
func (r *Repository) ListByRecipient(
	ctx context.Context,
	userID uuid.UUID,
	unreadOnly bool,
	limit int,
	offset int,
) ([]*Notification, error) {
	query := `
		SELECT
			n.id, n.recipient, n.type, n.title, n.message, n.related_query,
			n.is_read, n.read_at, n.channel_email, n.channel_push, n.channel_in_app,
			n.metadata, n.created_at, n.updated_at,
			q.subject, q.status
		FROM notifications n
		LEFT JOIN queries q ON q.id = n.related_query
		WHERE n.recipient = $1 AND ($2 = FALSE OR n.is_read = FALSE)
		ORDER BY n.created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var notif Notification
		var subject, status *string
		err := rows.Scan(
			&notif.ID,
			&notif.Recipient,
			&notif.Type,
			&notif.Title,
			&notif.Message,
			&notif.RelatedQuery,
			&notif.IsRead,
			&notif.ReadAt,
			&notif.Channels.Email,
			&notif.Channels.Push,
			&notif.Channels.InApp,
			&notif.Metadata,
			&notif.CreatedAt,
			&notif.UpdatedAt,
			&subject,
			&status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if notif.RelatedQuery != nil && subject != nil && status != nil {
			notif.Query = &QuerySummary{
				ID:      *notif.RelatedQuery,
				Subject: *subject,
				Status:  *status,
			}
		}
		notifications = append(notifications, &notif)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// CountByRecipient returns the number of notifications matching the
// listing filter, ignoring pagination.
func (r *Repository) CountByRecipient(ctx context.Context, userID uuid.UUID, unreadOnly bool) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE recipient = $1 AND ($2 = FALSE OR is_read = FALSE)
	`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, userID, unreadOnly).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}

	return count, nil
}

// CountUnread returns the user's total unread count, independent of any
// listing filter.
func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE recipient = $1 AND is_read = FALSE
	`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}

	return count, nil
}
