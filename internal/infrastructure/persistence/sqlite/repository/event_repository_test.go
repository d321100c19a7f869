package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hookfeed/internal/bootstrap/config"
	"hookfeed/internal/bootstrap/database"
	"hookfeed/internal/domain/event"
	"hookfeed/internal/ports"
)

func setupEventRepository(t *testing.T) *EventRepository {
	t.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "events.sqlite"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(db)
	})

	repo := NewEventRepository(db)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func pushEvent(requestID string, ts time.Time) event.CanonicalEvent {
	return event.CanonicalEvent{
		RequestID: requestID,
		Author:    "alice",
		Action:    event.ActionPush,
		ToBranch:  "main",
		Timestamp: ts,
	}
}

func TestInsertRoundTrip(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()

	merge := event.CanonicalEvent{
		RequestID:  "merge_42",
		Author:     "carol",
		Action:     event.ActionMerge,
		FromBranch: "feature",
		ToBranch:   "main",
		Timestamp:  time.Date(2026, 2, 3, 8, 0, 0, 123456789, time.UTC),
	}

	stored, err := repo.Insert(ctx, merge)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if stored.ID == "" {
		t.Fatal("Insert() id is empty")
	}

	items, err := repo.QueryRecent(ctx, 10)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("QueryRecent() len = %d, want 1", len(items))
	}
	if items[0].ID != stored.ID {
		t.Fatalf("QueryRecent() id = %q, want %q", items[0].ID, stored.ID)
	}
	if items[0].Event != merge {
		t.Fatalf("QueryRecent() event = %+v, want %+v", items[0].Event, merge)
	}
}

func TestQueryRecentReturnsNewestFiftyOfSixty(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of timestamp order so the result proves sorting by timestamp.
	for i := 0; i < 60; i++ {
		offset := (i * 37) % 60
		if _, err := repo.Insert(ctx, pushEvent(fmt.Sprintf("c%02d", offset), base.Add(time.Duration(offset)*time.Minute))); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}

	items, err := repo.QueryRecent(ctx, 50)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(items) != 50 {
		t.Fatalf("QueryRecent() len = %d, want 50", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].Event.Timestamp.After(items[i-1].Event.Timestamp) {
			t.Fatalf("items[%d] newer than items[%d]: %s > %s", i, i-1, items[i].Event.Timestamp, items[i-1].Event.Timestamp)
		}
	}
	if items[0].Event.RequestID != "c59" || items[49].Event.RequestID != "c10" {
		t.Fatalf("window = %s..%s, want c59..c10", items[0].Event.RequestID, items[49].Event.RequestID)
	}
}

func TestQueryRecentBreaksTiesByInsertionOrder(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"first", "second", "third"} {
		if _, err := repo.Insert(ctx, pushEvent(id, ts)); err != nil {
			t.Fatalf("Insert(%s) error = %v", id, err)
		}
	}

	for attempt := 0; attempt < 3; attempt++ {
		items, err := repo.QueryRecent(ctx, 3)
		if err != nil {
			t.Fatalf("QueryRecent() error = %v", err)
		}
		got := []string{items[0].Event.RequestID, items[1].Event.RequestID, items[2].Event.RequestID}
		if got[0] != "third" || got[1] != "second" || got[2] != "first" {
			t.Fatalf("order = %v, want [third second first]", got)
		}
	}
}

func TestInsertKeepsDuplicateRequestIDs(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()
	ev := pushEvent("abc123", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	first, err := repo.Insert(ctx, ev)
	if err != nil {
		t.Fatalf("Insert(first) error = %v", err)
	}
	second, err := repo.Insert(ctx, ev)
	if err != nil {
		t.Fatalf("Insert(second) error = %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("duplicate insert reused id %q", first.ID)
	}

	items, err := repo.QueryRecent(ctx, 10)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("QueryRecent() len = %d, want 2", len(items))
	}
}

func TestInsertUniqueSuppressesDuplicates(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()
	ev := pushEvent("abc123", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	stored, inserted, err := repo.InsertUnique(ctx, ev)
	if err != nil {
		t.Fatalf("InsertUnique(first) error = %v", err)
	}
	if !inserted || stored.ID == "" {
		t.Fatalf("InsertUnique(first) = %+v inserted=%v, want stored", stored, inserted)
	}

	_, inserted, err = repo.InsertUnique(ctx, ev)
	if err != nil {
		t.Fatalf("InsertUnique(duplicate) error = %v", err)
	}
	if inserted {
		t.Fatal("InsertUnique(duplicate) inserted = true, want false")
	}

	items, err := repo.QueryRecent(ctx, 10)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("QueryRecent() len = %d, want 1", len(items))
	}
}

func TestInsertRejectsInvalidEvent(t *testing.T) {
	repo := setupEventRepository(t)

	_, err := repo.Insert(context.Background(), event.CanonicalEvent{Action: event.ActionPush, ToBranch: "main", Timestamp: time.Now()})
	if !errors.Is(err, event.ErrInvalidEvent) {
		t.Fatalf("Insert() error = %v, want ErrInvalidEvent", err)
	}
	if ports.IsRetryable(err) {
		t.Fatal("invalid event reported as retryable")
	}
}

func TestInsertRejectsUnrepresentableTimestamp(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()

	if _, err := repo.Insert(ctx, pushEvent("late", time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC))); !errors.Is(err, event.ErrInvalidEvent) {
		t.Fatalf("Insert() error = %v, want ErrInvalidEvent", err)
	}
	if _, _, err := repo.InsertUnique(ctx, pushEvent("early", time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC))); !errors.Is(err, event.ErrInvalidEvent) {
		t.Fatalf("InsertUnique() error = %v, want ErrInvalidEvent", err)
	}

	if _, err := repo.Insert(ctx, pushEvent("edge", event.MaxTimestamp)); err != nil {
		t.Fatalf("Insert() edge error = %v", err)
	}
	items, err := repo.QueryRecent(ctx, 10)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(items) != 1 || !items[0].Event.Timestamp.Equal(event.MaxTimestamp) {
		t.Fatalf("QueryRecent() = %+v, want only the edge event at %v", items, event.MaxTimestamp)
	}
}

func TestExpiredContextIsStoreTimeout(t *testing.T) {
	repo := setupEventRepository(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := repo.QueryRecent(ctx, 10)
	if !errors.Is(err, ports.ErrStoreTimeout) {
		t.Fatalf("QueryRecent() error = %v, want ErrStoreTimeout", err)
	}
	_, err = repo.Insert(ctx, pushEvent("late", time.Now()))
	if !errors.Is(err, ports.ErrStoreTimeout) {
		t.Fatalf("Insert() error = %v, want ErrStoreTimeout", err)
	}
}

func TestQueryRecentRejectsNonPositiveLimit(t *testing.T) {
	repo := setupEventRepository(t)
	if _, err := repo.QueryRecent(context.Background(), 0); err == nil {
		t.Fatal("QueryRecent(0) error = nil")
	}
}

func TestConcurrentInserts(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errCh := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.Insert(ctx, pushEvent(fmt.Sprintf("c%d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent Insert() error = %v", err)
	}

	items, err := repo.QueryRecent(ctx, 50)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(items) != 20 {
		t.Fatalf("QueryRecent() len = %d, want 20", len(items))
	}
}

func TestPing(t *testing.T) {
	repo := setupEventRepository(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
