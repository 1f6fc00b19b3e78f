package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FrostySource/VAMLaunch/internal/infrastructure/database"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// Event kind values.
const (
	KindConnection = "connection"
	KindDevice     = "device"
	KindCommand    = "command"
	KindError      = "error"
)

// Event represents a single recorded client event.
//
// DeviceIndex is negative for events not tied to a device (connection
// changes, transport errors).
type Event struct {
	// ID is the auto-incremented primary key for the event row.
	ID int64 `json:"id"`

	// Kind classifies the event (connection, device, command, error).
	Kind string `json:"kind"`

	// DeviceIndex is the server-assigned device index, or -1.
	DeviceIndex int `json:"device_index"`

	// DeviceName is the device label at the time of the event, if any.
	DeviceName string `json:"device_name,omitempty"`

	// Detail is a human-readable description of what happened.
	Detail string `json:"detail"`

	// CreatedAt is the timestamp of the event (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Store persists client events to SQLite.
//
// All timestamps are stored in UTC. Methods are safe for concurrent use;
// the underlying connection serialises writers.
type Store struct {
	db *database.DB
}

// NewStore creates an event store on an open database connection.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record inserts a new event.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - event: Event to persist; ID and CreatedAt are assigned by the database
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Record(ctx context.Context, event Event) error {
	if event.Kind == "" {
		return fmt.Errorf("event kind is required")
	}

	var deviceIndex sql.NullInt64
	if event.DeviceIndex >= 0 {
		deviceIndex = sql.NullInt64{Int64: int64(event.DeviceIndex), Valid: true}
	}

	var deviceName sql.NullString
	if event.DeviceName != "" {
		deviceName = sql.NullString{String: event.DeviceName, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (kind, device_index, device_name, detail) VALUES (?, ?, ?, ?)",
		event.Kind,
		deviceIndex,
		deviceName,
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// RecordConnection records a connection-state event.
func (s *Store) RecordConnection(ctx context.Context, detail string) error {
	return s.Record(ctx, Event{Kind: KindConnection, DeviceIndex: -1, Detail: detail})
}

// RecordDevice records a device arrival or removal.
func (s *Store) RecordDevice(ctx context.Context, deviceIndex int, deviceName, detail string) error {
	return s.Record(ctx, Event{
		Kind:        KindDevice,
		DeviceIndex: deviceIndex,
		DeviceName:  deviceName,
		Detail:      detail,
	})
}

// RecordCommand records an outbound device command.
func (s *Store) RecordCommand(ctx context.Context, deviceIndex int, detail string) error {
	return s.Record(ctx, Event{Kind: KindCommand, DeviceIndex: deviceIndex, Detail: detail})
}

// RecordError records a transport or protocol error.
func (s *Store) RecordError(ctx context.Context, detail string) error {
	return s.Record(ctx, Event{Kind: KindError, DeviceIndex: -1, Detail: detail})
}

// Recent returns the most recent events, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Event: Events ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	return s.query(ctx,
		`SELECT id, kind, device_index, device_name, detail, created_at
		 FROM events
		 ORDER BY id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
}

// RecentByKind returns the most recent events of one kind, newest first.
func (s *Store) RecentByKind(ctx context.Context, kind string, limit int) ([]Event, error) {
	if kind == "" {
		return nil, fmt.Errorf("event kind is required")
	}
	return s.query(ctx,
		`SELECT id, kind, device_index, device_name, detail, created_at
		 FROM events
		 WHERE kind = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		kind,
		clampLimit(limit),
	)
}

// Prune deletes events older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (events older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM events WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var deviceIndex sql.NullInt64
		var deviceName sql.NullString
		var createdAt string

		if err := rows.Scan(&event.ID, &event.Kind, &deviceIndex, &deviceName, &event.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		event.DeviceIndex = -1
		if deviceIndex.Valid {
			event.DeviceIndex = int(deviceIndex.Int64)
		}
		event.DeviceName = deviceName.String

		timestamp, err := parseEventTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		event.CreatedAt = timestamp

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}

// parseEventTimestamp parses a timestamp stored in SQLite.
func parseEventTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
