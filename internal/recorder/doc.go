// Package recorder persists channel events to PostgreSQL.
//
// Events are queued without blocking the caller, accumulated into batches
// and inserted with pgx.Batch. Inserts are append-only and idempotent on
// the event id.
package recorder
