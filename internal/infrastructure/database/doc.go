// Package database manages the node's SQLite database.
//
// The database holds the comm-event audit trail queried by the
// diagnostics API, plus the schema_migrations ledger. It is NOT part
// of the delivery path: durable at-least-once delivery is the
// persister's file store, and losing this database loses history, not
// events.
//
// # Schema Migrations
//
// Schema changes ship as embedded SQL files (see the migrations
// package) named YYYYMMDD_HHMMSS_description.up.sql, with an optional
// matching .down.sql. Migrate applies pending versions in order, each
// in its own transaction, and records them in schema_migrations.
//
// # Concurrency
//
// The pool is capped at one connection because SQLite allows a single
// writer. WAL mode lets API reads proceed during writes.
package database
