package writer

import (
	"context"
	"fmt"
)

const valuesTable = "signalk_values"

var valueColumns = []string{
	"delta_id", "instance", "source_id", "context", "path",
	"value", "source", "ts", "received_at",
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS signalk_values (
		delta_id    UUID        NOT NULL,
		instance    TEXT        NOT NULL,
		source_id   TEXT        NOT NULL,
		context     TEXT        NOT NULL,
		path        TEXT        NOT NULL,
		value       JSONB,
		source      TEXT,
		ts          TIMESTAMPTZ,
		received_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS signalk_values_path_received_idx
		ON signalk_values (path, received_at DESC)`,
	`CREATE INDEX IF NOT EXISTS signalk_values_delta_idx
		ON signalk_values (delta_id)`,
}

// EnsureSchema creates the archive table and its indexes if missing.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
