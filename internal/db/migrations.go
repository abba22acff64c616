package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "users",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
                id TEXT PRIMARY KEY,
                username TEXT NOT NULL UNIQUE,
                display_name TEXT NOT NULL DEFAULT '',
                avatar TEXT NOT NULL DEFAULT ''
            );`,
		},
	},
	{
		version: 2,
		name:    "conversations",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS conversations (
                id TEXT PRIMARY KEY,
                participant_key TEXT,
                is_group_chat BOOLEAN NOT NULL DEFAULT FALSE,
                chat_name TEXT,
                chat_image TEXT,
                last_message_id TEXT,
                created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
                updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
            );`,
			`CREATE TABLE IF NOT EXISTS conversation_participants (
                conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
                user_id TEXT NOT NULL,
                position INT NOT NULL DEFAULT 0,
                has_left BOOLEAN NOT NULL DEFAULT FALSE,
                is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
                PRIMARY KEY (conversation_id, user_id)
            );`,
			`CREATE INDEX IF NOT EXISTS conversation_participants_user_idx
                ON conversation_participants (user_id) WHERE has_left = FALSE;`,
		},
	},
	{
		version: 3,
		name:    "messages",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS messages (
                id TEXT PRIMARY KEY,
                conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
                sender_id TEXT NOT NULL,
                content TEXT,
                media_url TEXT,
                media_type TEXT,
                type TEXT NOT NULL DEFAULT 'message',
                reply_to TEXT,
                tweet_id TEXT,
                read_by TEXT[] NOT NULL DEFAULT '{}',
                removed_by TEXT[] NOT NULL DEFAULT '{}',
                created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
            );`,
			`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx
                ON messages (conversation_id, created_at DESC);`,
		},
	},
	{
		version: 4,
		name:    "notifications",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS notifications (
                id TEXT PRIMARY KEY,
                type TEXT NOT NULL,
                sender_id TEXT NOT NULL,
                receiver_id TEXT NOT NULL,
                tweet_id TEXT,
                read BOOLEAN NOT NULL DEFAULT FALSE,
                created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
            );`,
			`CREATE INDEX IF NOT EXISTS notifications_receiver_created_idx
                ON notifications (receiver_id, created_at DESC);`,
		},
	},
	{
		// Older deployments stored members as a flat id array on the
		// conversation row. Move them into participant rows, then derive the
		// identity key.
		version: 5,
		name:    "participants_from_legacy_array",
		statements: []string{
			`DO $$
            BEGIN
                IF EXISTS (
                    SELECT 1 FROM information_schema.columns
                    WHERE table_name = 'conversations' AND column_name = 'participant_ids'
                ) THEN
                    INSERT INTO conversation_participants (conversation_id, user_id, position)
                    SELECT c.id, p.user_id, (p.ord - 1)::INT
                    FROM conversations c,
                         unnest(c.participant_ids) WITH ORDINALITY AS p(user_id, ord)
                    ON CONFLICT (conversation_id, user_id) DO NOTHING;
                    ALTER TABLE conversations DROP COLUMN participant_ids;
                END IF;
            END $$;`,
			`UPDATE conversations c SET participant_key = k.key
            FROM (
                SELECT conversation_id, string_agg(DISTINCT user_id COLLATE "C", ',' ORDER BY user_id COLLATE "C") AS key
                FROM conversation_participants
                GROUP BY conversation_id
            ) k
            WHERE k.conversation_id = c.id AND c.participant_key IS NULL;`,
			`CREATE UNIQUE INDEX IF NOT EXISTS conversations_participant_key_idx
                ON conversations (participant_key);`,
		},
	},
}

// Migrate applies every migration newer than the recorded schema version and
// returns how many ran.
func Migrate(ctx context.Context, db *sqlx.DB) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version INT PRIMARY KEY,
        name TEXT NOT NULL,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`); err != nil {
		return 0, err
	}

	var current int
	if err := db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range pending(current) {
		if err := apply(ctx, db, m); err != nil {
			return applied, fmt.Errorf("migration %d %s: %w", m.version, m.name, err)
		}
		applied++
	}
	return applied, nil
}

func pending(current int) []migration {
	var out []migration
	for _, m := range migrations {
		if m.version > current {
			out = append(out, m)
		}
	}
	return out
}

func apply(ctx context.Context, db *sqlx.DB, m migration) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}
