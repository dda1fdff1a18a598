// Package database provides the PostgreSQL connection pool and schema for
// recorded channel events.
package database
