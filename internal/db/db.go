package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// migrations run in order on every start; each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            email VARCHAR(50) PRIMARY KEY,
            first_name VARCHAR(50) NOT NULL,
            last_name VARCHAR(50) NOT NULL,
            password_hash VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

	`CREATE TABLE IF NOT EXISTS chat_sessions (
            id TEXT PRIMARY KEY,
            pair_key TEXT NOT NULL,
            participant0_email VARCHAR(50) NOT NULL,
            participant0_first_name VARCHAR(50) NOT NULL,
            participant0_last_name VARCHAR(50) NOT NULL,
            participant1_email VARCHAR(50) NOT NULL,
            participant1_first_name VARCHAR(50) NOT NULL,
            participant1_last_name VARCHAR(50) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

	`CREATE UNIQUE INDEX IF NOT EXISTS chat_sessions_pair_key_idx ON chat_sessions (pair_key)`,
	`CREATE INDEX IF NOT EXISTS chat_sessions_participant0_idx ON chat_sessions (participant0_email)`,
	`CREATE INDEX IF NOT EXISTS chat_sessions_participant1_idx ON chat_sessions (participant1_email)`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
            seq BIGSERIAL PRIMARY KEY,
            session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
            sender_email VARCHAR(50) NOT NULL,
            text TEXT NOT NULL,
            image TEXT,
            date_sent TIMESTAMPTZ NOT NULL
        )`,

	`CREATE INDEX IF NOT EXISTS chat_messages_session_seq_idx ON chat_messages (session_id, seq)`,
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range migrations {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
