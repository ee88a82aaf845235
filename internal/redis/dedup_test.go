package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestDedup(t *testing.T) (*DedupService, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	svc := NewDedupService(client, zap.NewNop())

	return svc, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestDedup_FirstEventReserves(t *testing.T) {
	svc, cleanup := setupTestDedup(t)
	defer cleanup()

	result, err := svc.CheckOrReserve(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("fresh event should have no cached result, got %+v", result)
	}
}

func TestDedup_ConcurrentEventRejected(t *testing.T) {
	svc, cleanup := setupTestDedup(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "evt-1"); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}

	// Same event id while the first handler still holds the reservation.
	_, err := svc.CheckOrReserve(ctx, "evt-1")
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
}

func TestDedup_StoredResultReplays(t *testing.T) {
	svc, cleanup := setupTestDedup(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "evt-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	stored := &DedupResult{NotificationID: "3f8ab0d2-0000-0000-0000-000000000000"}
	if err := svc.Store(ctx, "evt-1", stored); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if stored.CreatedAt == 0 {
		t.Error("Store should backfill CreatedAt")
	}

	replayed, err := svc.CheckOrReserve(ctx, "evt-1")
	if err != nil {
		t.Fatalf("replay lookup failed: %v", err)
	}
	if replayed == nil {
		t.Fatal("expected the stored result back")
	}
	if replayed.NotificationID != stored.NotificationID {
		t.Errorf("replayed id = %s, want %s", replayed.NotificationID, stored.NotificationID)
	}
}

func TestDedup_ReleaseAllowsRetry(t *testing.T) {
	svc, cleanup := setupTestDedup(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "evt-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	svc.Release(ctx, "evt-1")

	result, err := svc.CheckOrReserve(ctx, "evt-1")
	if err != nil {
		t.Fatalf("post-release reserve failed: %v", err)
	}
	if result != nil {
		t.Fatalf("released event should reserve fresh, got %+v", result)
	}
}

func TestDedup_DistinctEventsIndependent(t *testing.T) {
	svc, cleanup := setupTestDedup(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "evt-1"); err != nil {
		t.Fatalf("reserve evt-1 failed: %v", err)
	}
	if _, err := svc.CheckOrReserve(ctx, "evt-2"); err != nil {
		t.Fatalf("reserve evt-2 failed: %v", err)
	}
}
