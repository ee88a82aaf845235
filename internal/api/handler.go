package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/metrics"
	"github.com/lalithlochan/courier/internal/notify"
	"github.com/lalithlochan/courier/internal/redis"
)

// NotificationService is the dispatcher surface the handlers drive.
type NotificationService interface {
	Create(ctx context.Context, in notify.CreateInput) (*db.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) (*db.Notification, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, opts notify.ListOptions) (*notify.ListResult, error)
}

// RoomPublisher pushes live events to a user's connected clients.
type RoomPublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event string, payload any) error
}

// QueryStateEvent is the payload query-lifecycle callers post when a
// support query changes state.
type QueryStateEvent struct {
	Recipient    string          `json:"recipient"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	RelatedQuery string          `json:"related_query,omitempty"`
	Channels     *db.Channels    `json:"channels,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`

	// EventID deduplicates redelivered events when set.
	EventID string `json:"event_id,omitempty"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger *zap.Logger
	svc    NotificationService
	rooms  RoomPublisher       // nil if Redis not configured
	dedup  *redis.DedupService // nil if Redis not configured
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, svc NotificationService) *Handler {
	return &Handler{
		logger: logger,
		svc:    svc,
	}
}

// NewHandlerWithRealtime creates a handler that also publishes room
// events and deduplicates ingested events.
func NewHandlerWithRealtime(logger *zap.Logger, svc NotificationService, rooms RoomPublisher, dedup *redis.DedupService) *Handler {
	return &Handler{
		logger: logger,
		svc:    svc,
		rooms:  rooms,
		dedup:  dedup,
	}
}

// IngestQueryState handles POST /v1/events/query-state
func (h *Handler) IngestQueryState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req QueryStateEvent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Recipient == "" || req.Type == "" || req.Title == "" || req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "recipient, type, title, and message are required")
		return
	}

	if !db.ValidType(req.Type) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid type", "type must be query-response, status-update, system, or reminder")
		return
	}

	recipient, err := uuid.Parse(req.Recipient)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipient", "recipient must be a valid UUID")
		return
	}

	var relatedQuery *uuid.UUID
	if req.RelatedQuery != "" {
		q, err := uuid.Parse(req.RelatedQuery)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid related_query", "related_query must be a valid UUID")
			return
		}
		relatedQuery = &q
	}

	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid metadata", "metadata must be valid JSON")
		return
	}

	// Replay previously processed events instead of double-notifying
	if req.EventID != "" && h.dedup != nil {
		cached, err := h.dedup.CheckOrReserve(ctx, req.EventID)

		if err != nil {
			if errors.Is(err, redis.ErrDuplicateEvent) {
				h.writeError(w, http.StatusConflict, "duplicate_event",
					"Event is already being processed",
					"Another delivery of this event id is in progress")
				return
			}
			h.logger.Warn("event dedup check failed, proceeding",
				zap.Error(err),
				zap.String("event_id", req.EventID),
			)
		} else if cached != nil {
			metrics.RecordEventDedupHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Event-Replayed", "true")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": cached.NotificationID})
			return
		}
	}

	notif, err := h.svc.Create(ctx, notify.CreateInput{
		Recipient:    recipient,
		Type:         req.Type,
		Title:        req.Title,
		Message:      req.Message,
		RelatedQuery: relatedQuery,
		Channels:     req.Channels,
		Metadata:     req.Metadata,
	})
	if err != nil {
		if req.EventID != "" && h.dedup != nil {
			if notif != nil {
				// The row was persisted before the failure. Point redeliveries
				// at it; releasing here would let them store a second row.
				if serr := h.dedup.Store(ctx, req.EventID, &redis.DedupResult{NotificationID: notif.ID.String()}); serr != nil {
					h.logger.Warn("failed to store dedup result",
						zap.Error(serr),
						zap.String("event_id", req.EventID),
					)
				}
			} else {
				h.dedup.Release(ctx, req.EventID)
			}
		}
		switch {
		case errors.Is(err, db.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "not_found", "Recipient not found", "")
		case errors.Is(err, notify.ErrInvalidType),
			errors.Is(err, notify.ErrEmptyTitle),
			errors.Is(err, notify.ErrEmptyMessage):
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification", err.Error())
		default:
			h.logger.Error("failed to create notification",
				zap.Error(err),
				zap.String("recipient", req.Recipient),
				zap.String("type", req.Type),
			)
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create notification", "")
		}
		return
	}

	metrics.RecordNotificationCreated(notif.Type)

	if req.EventID != "" && h.dedup != nil {
		if err := h.dedup.Store(ctx, req.EventID, &redis.DedupResult{NotificationID: notif.ID.String()}); err != nil {
			h.logger.Warn("failed to store dedup result",
				zap.Error(err),
				zap.String("event_id", req.EventID),
			)
		}
	}

	h.publish(ctx, notif.Recipient, "notification", notif)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(notif)
}

// ListNotifications handles GET /v1/users/{userID}/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	opts := notify.ListOptions{}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil {
			opts.Page = p
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			opts.Limit = l
		}
	}

	if unreadStr := r.URL.Query().Get("unread_only"); unreadStr != "" {
		if u, err := strconv.ParseBool(unreadStr); err == nil {
			opts.UnreadOnly = u
		}
	}

	result, err := h.svc.List(ctx, userID, opts)
	if err != nil {
		h.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

// MarkRead handles POST /v1/users/{userID}/notifications/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	notifID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	notif, err := h.svc.MarkAsRead(ctx, notifID, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
			return
		}
		h.logger.Error("failed to mark notification read",
			zap.Error(err),
			zap.String("notification_id", notifID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update notification", "")
		return
	}

	h.publish(ctx, userID, "notification-read", notif)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(notif)
}

// MarkAllRead handles POST /v1/users/{userID}/notifications/read-all
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.MarkAllAsRead(ctx, userID); err != nil {
		h.logger.Error("failed to mark all notifications read",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update notifications", "")
		return
	}

	h.publish(ctx, userID, "notifications-read-all", map[string]string{"user_id": userID.String()})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "All notifications marked as read"})
}

func (h *Handler) userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user ID", "userID must be a valid UUID")
		return uuid.Nil, false
	}
	return userID, true
}

// publish pushes a room event, best effort. Live updates are a
// convenience on top of the durable record; failures only get logged.
func (h *Handler) publish(ctx context.Context, userID uuid.UUID, event string, payload any) {
	if h.rooms == nil {
		return
	}
	if err := h.rooms.Publish(ctx, userID, event, payload); err != nil {
		h.logger.Warn("failed to publish room event",
			zap.Error(err),
			zap.String("event", event),
			zap.String("user_id", userID.String()),
		)
		return
	}
	metrics.RecordRoomEvent(event)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
