package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/FrostySource/VAMLaunch/internal/infrastructure/database"

	// Registers the embedded events schema with the migration runner.
	_ "github.com/FrostySource/VAMLaunch/migrations"
)

const eventsMigrationVersion = "20260801_120000"

func migratedTestDB(t *testing.T) *database.DB {
	t.Helper()
	db := openTestDB(t, database.Config{
		Path:        filepath.Join(t.TempDir(), "vamlaunch.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return db
}

func countRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("counting %s rows: %v", table, err)
	}
	return n
}

func TestMigrate_AppliesEventsSchema(t *testing.T) {
	db := migratedTestDB(t)
	ctx := context.Background()

	// The events table must exist with the history columns.
	if _, err := db.ExecContext(ctx,
		"INSERT INTO events (kind, device_index, device_name, detail) VALUES (?, ?, ?, ?)",
		"device", 0, "Launch", "device connected",
	); err != nil {
		t.Fatalf("inserting into migrated events table: %v", err)
	}

	// created_at defaults server-side.
	var createdAt string
	if err := db.QueryRowContext(ctx, "SELECT created_at FROM events").Scan(&createdAt); err != nil {
		t.Fatalf("reading created_at: %v", err)
	}
	if createdAt == "" {
		t.Error("created_at default not applied")
	}

	var version string
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_migrations").Scan(&version)
	if err != nil {
		t.Fatalf("reading schema_migrations: %v", err)
	}
	if version != eventsMigrationVersion {
		t.Errorf("recorded version = %q, want %q", version, eventsMigrationVersion)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := migratedTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx,
		"INSERT INTO events (kind, detail) VALUES (?, ?)", "error", "3: device unavailable",
	); err != nil {
		t.Fatalf("inserting event: %v", err)
	}

	// A second run must not reapply anything or touch existing rows.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}
	if n := countRows(t, db, "events"); n != 1 {
		t.Errorf("events rows after re-migrate = %d, want 1", n)
	}
	if n := countRows(t, db, "schema_migrations"); n != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", n)
	}
}

func TestMigrateDown_RollsBackEventsSchema(t *testing.T) {
	db := migratedTestDB(t)
	ctx := context.Background()

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		"INSERT INTO events (kind, detail) VALUES (?, ?)", "connection", "ready",
	); err == nil {
		t.Fatal("events table still present after rollback")
	}
	if n := countRows(t, db, "schema_migrations"); n != 0 {
		t.Errorf("schema_migrations rows after rollback = %d, want 0", n)
	}

	// Migrating forward again restores the schema.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("re-Migrate() error: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO events (kind, detail) VALUES (?, ?)", "connection", "ready",
	); err != nil {
		t.Fatalf("inserting after re-migrate: %v", err)
	}
}
