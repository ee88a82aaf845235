package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is the envelope pushed to a user's room. Payload is whatever the
// caller serializes: a notification record, a query, a read-state change.
type Event struct {
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

// Publisher fans events out to per-user rooms over Redis pub/sub. Each
// user has one room; every live connection for that user subscribes to
// it. Delivery is fire-and-forget: a room with no subscribers drops the
// event; the durable notification row is the fallback.
type Publisher struct {
	client *Client
	logger *zap.Logger
}

// NewPublisher creates a room publisher on an established Redis client.
func NewPublisher(client *Client, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

func roomChannel(userID uuid.UUID) string {
	return "room:" + userID.String()
}

// Publish sends one event to userID's room.
func (p *Publisher) Publish(ctx context.Context, userID uuid.UUID, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	envelope, err := json.Marshal(Event{
		Event:       event,
		Payload:     body,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	receivers, err := p.client.rdb.Publish(ctx, roomChannel(userID), envelope).Result()
	if err != nil {
		return fmt.Errorf("publish to room: %w", err)
	}

	p.logger.Debug("room event published",
		zap.String("room", userID.String()),
		zap.String("event", event),
		zap.Int64("receivers", receivers),
	)

	return nil
}

// Subscribe joins userID's room and streams its events. The returned
// close func leaves the room; the channel closes shortly after.
func (p *Publisher) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Event, func() error) {
	sub := p.client.rdb.Subscribe(ctx, roomChannel(userID))

	events := make(chan Event)
	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.Warn("dropping malformed room event",
					zap.Error(err),
					zap.String("room", userID.String()),
				)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, sub.Close
}
