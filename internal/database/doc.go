// Package database opens the PostgreSQL/TimescaleDB pool used by the delta
// archive.
package database
