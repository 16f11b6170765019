package repository

import (
	"context"
	"fmt"

	"vpn-assistant/internal/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS dialogue_sessions (
    chat_id    BIGINT PRIMARY KEY,
    state      TEXT NOT NULL,
    total      INTEGER NOT NULL DEFAULT 0,
    current_device INTEGER NOT NULL DEFAULT 0,
    platforms  TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS provisioned_clients (
    id         BIGSERIAL PRIMARY KEY,
    chat_id    BIGINT NOT NULL,
    user_id    BIGINT NOT NULL,
    platform   TEXT NOT NULL,
    client_id  TEXT NOT NULL,
    sub_url    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS provisioned_clients_user_id_idx ON provisioned_clients (user_id, created_at DESC);`,
}

// EnsureSchema creates the tables the repositories use
func EnsureSchema(ctx context.Context, db database.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
