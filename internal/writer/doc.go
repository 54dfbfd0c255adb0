// Package writer archives routed delta values into TimescaleDB.
//
// ValueWriter drains the router's buffer, accumulates rows and copies them
// into signalk_values in batches. Rows are append-only; the raw JSON value
// of every path is kept as JSONB.
package writer
