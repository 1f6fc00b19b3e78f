package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FrostySource/VAMLaunch/internal/infrastructure/database"
)

// setupTestStore creates a Store backed by a temporary database with the
// events table.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			device_index INTEGER,
			device_name TEXT,
			detail TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);
		CREATE INDEX idx_events_kind ON events(kind);
		CREATE INDEX idx_events_created_at ON events(created_at);
	`

	if _, err := db.DB.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return NewStore(db)
}

// insertEventRow inserts an event with a specific timestamp.
func insertEventRow(t *testing.T, store *Store, kind, detail string, createdAt time.Time) {
	t.Helper()

	_, err := store.db.DB.Exec(
		"INSERT INTO events (kind, detail, created_at) VALUES (?, ?, ?)",
		kind,
		detail,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert event row: %v", err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.RecordConnection(ctx, "connected to localhost:12345"); err != nil {
		t.Fatalf("RecordConnection() error = %v", err)
	}
	if err := store.RecordDevice(ctx, 3, "Launch", "device added"); err != nil {
		t.Fatalf("RecordDevice() error = %v", err)
	}

	events, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events length = %d, want 2", len(events))
	}

	// Newest first.
	if events[0].Kind != KindDevice {
		t.Errorf("events[0].Kind = %q, want %q", events[0].Kind, KindDevice)
	}
	if events[0].DeviceIndex != 3 {
		t.Errorf("events[0].DeviceIndex = %d, want 3", events[0].DeviceIndex)
	}
	if events[0].DeviceName != "Launch" {
		t.Errorf("events[0].DeviceName = %q, want %q", events[0].DeviceName, "Launch")
	}

	// Connection events carry no device.
	if events[1].DeviceIndex != -1 {
		t.Errorf("events[1].DeviceIndex = %d, want -1", events[1].DeviceIndex)
	}
	if events[1].CreatedAt.IsZero() {
		t.Error("events[1].CreatedAt should be populated")
	}
}

func TestRecord_RequiresKind(t *testing.T) {
	store := setupTestStore(t)

	err := store.Record(context.Background(), Event{Detail: "no kind"})
	if err == nil {
		t.Error("Record() expected error for empty kind, got nil")
	}
}

func TestRecentByKind(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.RecordError(ctx, "read: connection reset"); err != nil {
		t.Fatalf("RecordError() error = %v", err)
	}
	if err := store.RecordCommand(ctx, 0, "linear 0.5 over 500ms"); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}
	if err := store.RecordError(ctx, "3: device unavailable"); err != nil {
		t.Fatalf("RecordError() error = %v", err)
	}

	events, err := store.RecentByKind(ctx, KindError, 10)
	if err != nil {
		t.Fatalf("RecentByKind() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events length = %d, want 2", len(events))
	}
	for _, event := range events {
		if event.Kind != KindError {
			t.Errorf("event.Kind = %q, want %q", event.Kind, KindError)
		}
	}

	if _, err := store.RecentByKind(ctx, "", 10); err == nil {
		t.Error("RecentByKind() expected error for empty kind, got nil")
	}
}

func TestRecent_LimitClamping(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if err := store.RecordCommand(ctx, 0, "tick"); err != nil {
			t.Fatalf("RecordCommand() error = %v", err)
		}
	}

	// Zero limit falls back to the default of 50.
	events, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(events) != 50 {
		t.Errorf("events length = %d, want default limit of 50", len(events))
	}
}

func TestPrune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	insertEventRow(t, store, KindCommand, "old", now.Add(-48*time.Hour))
	insertEventRow(t, store, KindCommand, "recent", now.Add(-1*time.Hour))

	deleted, err := store.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() deleted = %d, want 1", deleted)
	}

	events, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(events) != 1 || events[0].Detail != "recent" {
		t.Errorf("remaining events = %v, want only the recent one", events)
	}
}

func TestPrune_RejectsNonPositive(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.Prune(context.Background(), 0); err == nil {
		t.Error("Prune() expected error for zero duration, got nil")
	}
}
