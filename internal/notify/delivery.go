package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/courier/internal/db"
)

// EmailSender delivers one notification to one user's mailbox.
// Implementations: SMTP relay, AWS SES. A nil sender means the email
// channel is disabled for the process lifetime.
type EmailSender interface {
	Send(ctx context.Context, user *db.User, notif *db.Notification) error
}

// PushSender delivers one notification to a user's registered push
// endpoint. Same contract as EmailSender.
type PushSender interface {
	Send(ctx context.Context, user *db.User, notif *db.Notification) error
}

// Senders bundles the optional side-channel transports.
type Senders struct {
	Email EmailSender
	Push  PushSender
}

// Delivery outcomes
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Skip reasons
const (
	SkipPreferenceDisabled = "preference_disabled"
	SkipTransportDisabled  = "transport_disabled"
)

// DeliveryAttempt describes one side-channel delivery attempt (or a
// deliberate skip of a requested channel). The persisted record is the
// source of truth either way; attempts exist for observability only.
type DeliveryAttempt struct {
	NotificationID uuid.UUID     `json:"notification_id"`
	Recipient      uuid.UUID     `json:"recipient"`
	Channel        string        `json:"channel"`
	Outcome        string        `json:"outcome"`
	Reason         string        `json:"reason,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

// DeliveryHook observes delivery attempts. Hooks run synchronously on
// the create path and must not block.
type DeliveryHook func(ctx context.Context, attempt DeliveryAttempt)
