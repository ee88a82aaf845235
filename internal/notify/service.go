package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
)

// Validation errors surfaced before anything is persisted.
var (
	ErrInvalidType  = errors.New("invalid notification type")
	ErrEmptyTitle   = errors.New("title must not be empty")
	ErrEmptyMessage = errors.New("message must not be empty")
)

// Repository is the slice of the notification store the service needs.
type Repository interface {
	CreateNotification(ctx context.Context, notif *db.Notification) error
	GetNotification(ctx context.Context, id, userID uuid.UUID) (*db.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (*db.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	ListByRecipient(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*db.Notification, error)
	CountByRecipient(ctx context.Context, userID uuid.UUID, unreadOnly bool) (int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// UserStore resolves recipients and their channel preferences.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// Service is the delivery dispatcher: it persists notification records
// and fans out, best effort, to the requested side channels.
type Service struct {
	repo    Repository
	users   UserStore
	senders Senders
	hook    DeliveryHook
	logger  *zap.Logger
}

// NewService creates the dispatcher. Senders and hook may be zero; a
// missing transport turns that channel into recorded intent only.
func NewService(repo Repository, users UserStore, senders Senders, hook DeliveryHook, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		senders: senders,
		hook:    hook,
		logger:  logger,
	}
}

// CreateInput is the payload supplied by query-lifecycle callers.
type CreateInput struct {
	Recipient    uuid.UUID
	Type         string
	Title        string
	Message      string
	RelatedQuery *uuid.UUID
	Channels     *db.Channels
	Metadata     json.RawMessage
}

// Create persists a notification and attempts side-channel delivery.
//
// The record write happens first and is the only hard failure: the row
// existing IS the in-app notification. The recipient lookup runs after
// the write on purpose, so a transient lookup failure can never lose the
// record; callers that pass an unknown recipient get ErrNotFound back
// alongside the already-stored row, so they can still reference it.
// Email and push failures are logged, reported to the delivery hook,
// and swallowed.
func (s *Service) Create(ctx context.Context, in CreateInput) (*db.Notification, error) {
	if !db.ValidType(in.Type) {
		return nil, fmt.Errorf("type %q: %w", in.Type, ErrInvalidType)
	}
	if in.Title == "" {
		return nil, ErrEmptyTitle
	}
	if in.Message == "" {
		return nil, ErrEmptyMessage
	}

	channels := db.DefaultChannels()
	if in.Channels != nil {
		channels = *in.Channels
	}

	metadata := in.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	notif := &db.Notification{
		ID:           uuid.New(),
		Recipient:    in.Recipient,
		Type:         in.Type,
		Title:        in.Title,
		Message:      in.Message,
		RelatedQuery: in.RelatedQuery,
		Channels:     channels,
		Metadata:     metadata,
	}

	if err := s.repo.CreateNotification(ctx, notif); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	user, err := s.users.GetUser(ctx, in.Recipient)
	if err != nil {
		s.logger.Warn("recipient lookup failed after persist, skipping delivery",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
			zap.String("recipient", in.Recipient.String()),
		)
		return notif, err
	}

	if notif.Channels.Email {
		s.deliver(ctx, db.ChannelEmail, user, notif, user.EmailEnabled(), s.emailSend)
	}
	if notif.Channels.Push {
		s.deliver(ctx, db.ChannelPush, user, notif, user.PushEnabled(), s.pushSend)
	}

	return notif, nil
}

func (s *Service) emailSend(ctx context.Context, user *db.User, notif *db.Notification) (bool, error) {
	if s.senders.Email == nil {
		return false, nil
	}
	return true, s.senders.Email.Send(ctx, user, notif)
}

func (s *Service) pushSend(ctx context.Context, user *db.User, notif *db.Notification) (bool, error) {
	if s.senders.Push == nil {
		return false, nil
	}
	return true, s.senders.Push.Send(ctx, user, notif)
}

type sendFunc func(ctx context.Context, user *db.User, notif *db.Notification) (configured bool, err error)

// deliver runs one side-channel attempt: preference gate, transport
// gate, then the send itself. Whatever happens, the persisted record is
// untouched and no error escapes.
func (s *Service) deliver(ctx context.Context, channel string, user *db.User, notif *db.Notification, prefEnabled bool, send sendFunc) {
	attempt := DeliveryAttempt{
		NotificationID: notif.ID,
		Recipient:      user.ID,
		Channel:        channel,
	}

	if !prefEnabled {
		attempt.Outcome = OutcomeSkipped
		attempt.Reason = SkipPreferenceDisabled
		s.observe(ctx, attempt)
		return
	}

	start := time.Now()
	configured, err := send(ctx, user, notif)
	attempt.Duration = time.Since(start)

	switch {
	case !configured:
		attempt.Outcome = OutcomeSkipped
		attempt.Reason = SkipTransportDisabled
	case err != nil:
		s.logger.Error("delivery failed",
			zap.Error(err),
			zap.String("channel", channel),
			zap.String("notification_id", notif.ID.String()),
			zap.String("recipient", user.ID.String()),
		)
		attempt.Outcome = OutcomeFailed
		attempt.Reason = err.Error()
	default:
		attempt.Outcome = OutcomeSent
	}

	s.observe(ctx, attempt)
}

func (s *Service) observe(ctx context.Context, attempt DeliveryAttempt) {
	if s.hook != nil {
		s.hook(ctx, attempt)
	}
}

// MarkAsRead marks one notification read. Idempotent: a notification
// that is already read comes back unchanged with no write. Ownership is
// enforced; a foreign or missing id is db.ErrNotFound.
func (s *Service) MarkAsRead(ctx context.Context, id, userID uuid.UUID) (*db.Notification, error) {
	notif, err := s.repo.GetNotification(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if notif.IsRead {
		return notif, nil
	}

	updated, err := s.repo.MarkRead(ctx, id, userID)
	if errors.Is(err, db.ErrNotFound) {
		// Lost a race with a concurrent MarkAsRead or MarkAllAsRead;
		// the row is read now, return it as-is.
		return s.repo.GetNotification(ctx, id, userID)
	}
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// MarkAllAsRead marks every unread notification for userID as read in a
// single set-based update.
func (s *Service) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

// ListOptions controls paging for List. Zero values fall back to page 1
// and the default page size.
type ListOptions struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination summarizes the filtered set, ignoring the page window.
type Pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
}

// ListResult is one page of a user's inbox. UnreadCount is the user's
// overall unread total, independent of the UnreadOnly filter.
type ListResult struct {
	Notifications []*db.Notification `json:"notifications"`
	Pagination    Pagination         `json:"pagination"`
	UnreadCount   int                `json:"unreadCount"`
}

// List returns a page of notifications for userID, newest first.
// Page and limit are clamped: page to >= 1, limit to [1, 100] with 20 as
// the unset default.
func (s *Service) List(ctx context.Context, userID uuid.UUID, opts ListOptions) (*ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}

	limit := opts.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	offset := (page - 1) * limit

	notifications, err := s.repo.ListByRecipient(ctx, userID, opts.UnreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if notifications == nil {
		notifications = []*db.Notification{}
	}

	total, err := s.repo.CountByRecipient(ctx, userID, opts.UnreadOnly)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}

	return &ListResult{
		Notifications: notifications,
		Pagination: Pagination{
			Current: page,
			Pages:   (total + limit - 1) / limit,
			Total:   total,
		},
		UnreadCount: unread,
	}, nil
}
