package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// dedupTTL is how long a processed event id is remembered. Query
	// lifecycle callers may redeliver the same state-change event; a day
	// comfortably covers their retry horizon.
	dedupTTL = 24 * time.Hour

	// processingTTL is the lock duration while an event is being handled.
	processingTTL = 5 * time.Minute

	processingMarker = "processing"
)

// ErrDuplicateEvent indicates the same event id is being handled right now.
var ErrDuplicateEvent = errors.New("duplicate event: id is already being processed")

// DedupResult remembers what an event produced, so a redelivery can
// replay the outcome instead of creating a second notification.
type DedupResult struct {
	NotificationID string `json:"notification_id"`
	CreatedAt      int64  `json:"created_at"`
}

// DedupService makes event ingestion idempotent across redeliveries,
// keyed by the caller-supplied event id.
type DedupService struct {
	client *Client
	logger *zap.Logger
}

// NewDedupService creates a new event dedup service.
func NewDedupService(client *Client, logger *zap.Logger) *DedupService {
	return &DedupService{
		client: client,
		logger: logger,
	}
}

func (s *DedupService) buildKey(eventID string) string {
	return fmt.Sprintf("event-dedup:%s", eventID)
}

// CheckOrReserve returns the stored result for a seen event id, reserves
// the id for a new event (returning nil, nil), or reports
// ErrDuplicateEvent when another handler holds the reservation.
func (s *DedupService) CheckOrReserve(ctx context.Context, eventID string) (*DedupResult, error) {
	key := s.buildKey(eventID)

	val, err := s.client.rdb.Get(ctx, key).Result()
	if err == nil {
		if val == processingMarker {
			return nil, ErrDuplicateEvent
		}

		var result DedupResult
		if err := json.Unmarshal([]byte(val), &result); err != nil {
			return nil, fmt.Errorf("unmarshal dedup result: %w", err)
		}

		s.logger.Debug("event replayed from dedup cache",
			zap.String("event_id", eventID),
			zap.String("notification_id", result.NotificationID),
		)
		return &result, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}

	ok, err := s.client.rdb.SetNX(ctx, key, processingMarker, processingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("dedup reserve failed: %w", err)
	}
	if !ok {
		// Lost the race to a concurrent delivery of the same event.
		return nil, ErrDuplicateEvent
	}

	return nil, nil
}

// Store records the outcome for an event id, replacing the reservation.
func (s *DedupService) Store(ctx context.Context, eventID string, result *DedupResult) error {
	if result.CreatedAt == 0 {
		result.CreatedAt = time.Now().Unix()
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal dedup result: %w", err)
	}

	key := s.buildKey(eventID)
	if err := s.client.rdb.Set(ctx, key, body, dedupTTL).Err(); err != nil {
		return fmt.Errorf("dedup store failed: %w", err)
	}

	return nil
}

// Release drops a reservation so a failed event can be redelivered.
func (s *DedupService) Release(ctx context.Context, eventID string) {
	key := s.buildKey(eventID)
	if err := s.client.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("failed to release dedup reservation",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
	}
}
