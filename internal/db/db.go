package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect opens the Postgres pool and applies migrations.
func Connect(dsn string, log logrus.FieldLogger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")

	return db, nil
}

// Ping checks the pool with a bounded timeout.
func Ping(ctx context.Context, db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'student',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS chats (
            id TEXT PRIMARY KEY,
            sender_id TEXT NOT NULL,
            receivers TEXT[] NOT NULL DEFAULT '{}',
            subject TEXT NOT NULL DEFAULT '',
            content TEXT NOT NULL DEFAULT '',
            attachments TEXT[] NOT NULL DEFAULT '{}',
            reader TEXT[] NOT NULL DEFAULT '{}',
            hidden_for TEXT[] NOT NULL DEFAULT '{}',
            status TEXT NOT NULL DEFAULT 'ALIVE' CHECK (status IN ('ALIVE', 'DELETED')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS chats_sender_idx ON chats (sender_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS chats_receivers_idx ON chats USING GIN (receivers);`,
		`CREATE INDEX IF NOT EXISTS chats_retention_idx ON chats (status, updated_at);`,
		`CREATE TABLE IF NOT EXISTS chat_transfers (
            id TEXT PRIMARY KEY,
            chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            receivers TEXT[] NOT NULL DEFAULT '{}',
            reader TEXT[] NOT NULL DEFAULT '{}',
            hidden_for TEXT[] NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS chat_transfers_chat_idx ON chat_transfers (chat_id);`,
		`CREATE INDEX IF NOT EXISTS chat_transfers_receivers_idx ON chat_transfers USING GIN (receivers);`,
		`CREATE TABLE IF NOT EXISTS replies (
            id TEXT PRIMARY KEY,
            content TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            chat_id TEXT REFERENCES chats(id) ON DELETE CASCADE,
            transfer_id TEXT REFERENCES chat_transfers(id) ON DELETE CASCADE,
            is_public BOOLEAN NOT NULL DEFAULT TRUE,
            status TEXT NOT NULL DEFAULT 'ALIVE' CHECK (status IN ('ALIVE', 'DELETED')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT replies_single_thread CHECK ((chat_id IS NULL) <> (transfer_id IS NULL))
        );`,
		`CREATE INDEX IF NOT EXISTS replies_chat_idx ON replies (chat_id, created_at) WHERE chat_id IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS replies_transfer_idx ON replies (transfer_id, created_at) WHERE transfer_id IS NOT NULL;`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
