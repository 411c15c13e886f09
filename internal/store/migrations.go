package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// postgresSchema is applied idempotently on startup.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS identities (
	id UUID PRIMARY KEY,
	public_key TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY,
	identity_low UUID NOT NULL,
	identity_high UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT conversations_pair_key UNIQUE (identity_low, identity_high),
	CONSTRAINT conversations_distinct_pair CHECK (identity_low <> identity_high)
);

CREATE TABLE IF NOT EXISTS participants (
	id UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES conversations(id),
	identity_id UUID NOT NULL,
	last_read_at TIMESTAMPTZ,
	archived_at TIMESTAMPTZ,
	CONSTRAINT participants_membership UNIQUE (conversation_id, identity_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES conversations(id),
	sender_id UUID NOT NULL,
	content TEXT NOT NULL,
	correlation_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE messages ADD COLUMN IF NOT EXISTS correlation_id TEXT;

CREATE INDEX IF NOT EXISTS idx_participants_identity ON participants(identity_id);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_correlation ON messages(conversation_id, sender_id, correlation_id);
`

// RunMigrations applies the PostgreSQL schema.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, postgresSchema)
	return err
}
