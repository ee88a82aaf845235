package db

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist or does not
// belong to the requesting user. Check with errors.Is.
var ErrNotFound = errors.New("not found")

// Notification types (closed enumeration)
const (
	TypeQueryResponse = "query-response"
	TypeStatusUpdate  = "status-update"
	TypeSystem        = "system"
	TypeReminder      = "reminder"
)

// ValidType reports whether t is one of the known notification types.
func ValidType(t string) bool {
	switch t {
	case TypeQueryResponse, TypeStatusUpdate, TypeSystem, TypeReminder:
		return true
	}
	return false
}

// Channel names
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelInApp = "in_app"
)

// Channels records which delivery channels the caller requested.
// It reflects intent, not delivery outcome: in-app is satisfied by the
// row existing, email and push are best-effort side channels.
type Channels struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	InApp bool `json:"inApp"`
}

// DefaultChannels is what a caller gets when it requests nothing.
func DefaultChannels() Channels {
	return Channels{Email: false, Push: false, InApp: true}
}

// Notification is one durable record of an event a user should be
// informed of, independent of how or whether it was delivered.
type Notification struct {
	ID           uuid.UUID       `json:"id"`
	Recipient    uuid.UUID       `json:"recipient"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	RelatedQuery *uuid.UUID      `json:"related_query,omitempty"`
	IsRead       bool            `json:"is_read"`
	ReadAt       *time.Time      `json:"read_at,omitempty"`
	Channels     Channels        `json:"channels"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Query carries the lightweight display fields of RelatedQuery,
	// resolved by listing operations only.
	Query *QuerySummary `json:"query,omitempty"`
}

// QuerySummary is the subset of a support query that notification
// listings surface for deep links.
type QuerySummary struct {
	ID      uuid.UUID `json:"id"`
	Subject string    `json:"subject"`
	Status  string    `json:"status"`
}

// User is the recipient side of the pipeline: an address to deliver to
// plus per-channel preferences. Preferences are three-state: nil means
// the user never chose, which defaults to enabled.
type User struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	EmailNotifications *bool      `json:"email_notifications,omitempty"`
	PushNotifications  *bool      `json:"push_notifications,omitempty"`
	PushEndpointARN    *string    `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// EmailEnabled reports whether email delivery is allowed for this user.
func (u *User) EmailEnabled() bool {
	return u.EmailNotifications == nil || *u.EmailNotifications
}

// PushEnabled reports whether push delivery is allowed for this user.
func (u *User) PushEnabled() bool {
	return u.PushNotifications == nil || *u.PushNotifications
}
