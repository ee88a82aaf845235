package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestPublisher(t *testing.T) (*Publisher, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	pub := NewPublisher(client, zap.NewNop())

	return pub, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestPublisher_RoundTrip(t *testing.T) {
	pub, cleanup := setupTestPublisher(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID := uuid.New()
	events, closeSub := pub.Subscribe(ctx, userID)
	defer closeSub()

	// Give the subscription time to register before publishing.
	time.Sleep(100 * time.Millisecond)

	payload := map[string]string{"status": "resolved"}
	if err := pub.Publish(ctx, userID, "notification", payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Event != "notification" {
			t.Errorf("event = %q, want %q", ev.Event, "notification")
		}
		var got map[string]string
		if err := json.Unmarshal(ev.Payload, &got); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if got["status"] != "resolved" {
			t.Errorf("payload = %v, want status=resolved", got)
		}
		if ev.PublishedAt.IsZero() {
			t.Error("expected PublishedAt to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for room event")
	}
}

func TestPublisher_RoomIsolation(t *testing.T) {
	pub, cleanup := setupTestPublisher(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := uuid.New()
	bob := uuid.New()

	aliceEvents, closeAlice := pub.Subscribe(ctx, alice)
	defer closeAlice()
	bobEvents, closeBob := pub.Subscribe(ctx, bob)
	defer closeBob()

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(ctx, alice, "notification-read", map[string]string{"id": "1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case ev := <-aliceEvents:
		if ev.Event != "notification-read" {
			t.Errorf("event = %q, want %q", ev.Event, "notification-read")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alice's event")
	}

	select {
	case ev := <-bobEvents:
		t.Fatalf("bob received alice's event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
		// Correct: bob's room stays quiet.
	}
}

func TestPublisher_NoSubscribers(t *testing.T) {
	pub, cleanup := setupTestPublisher(t)
	defer cleanup()

	// Publishing into an empty room is not an error; the durable
	// notification row covers offline users.
	if err := pub.Publish(context.Background(), uuid.New(), "notification", map[string]string{}); err != nil {
		t.Fatalf("publish to empty room failed: %v", err)
	}
}
