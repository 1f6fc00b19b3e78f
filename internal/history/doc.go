// Package history provides a local SQLite audit trail of client events.
//
// Connection changes, device arrivals and removals, outbound commands and
// errors are recorded as rows in the events table. This gives operators a
// queryable record of what the client did even when the time-series
// database is disabled or unavailable.
//
// Usage:
//
//	store := history.NewStore(db)
//	store.RecordConnection(ctx, "connected to localhost:12345")
//	events, err := store.Recent(ctx, 20)
package history
