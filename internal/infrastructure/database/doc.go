// Package database opens the SQLite database backing the event history and
// runs the embedded schema migrations.
//
// The connection is tuned for the history workload: a single pooled
// connection (the recorder is the only regular writer), WAL mode so reads
// do not block it, a busy timeout against lock errors and 0600 file
// permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.History.Path,
//	    WALMode:     cfg.History.WALMode,
//	    BusyTimeout: cfg.History.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the top-level migrations package as paired
// YYYYMMDD_HHMMSS_description.{up,down}.sql files and applied oldest first,
// each in its own transaction.
package database
