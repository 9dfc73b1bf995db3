package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// DB: доступ к PostgreSQL: аккаунты, действия, результаты запусков.
type DB struct {
	Conn *sql.DB
}

func NewDB(conn *sql.DB) *DB {
	return &DB{Conn: conn}
}

// Open подключается к PostgreSQL и проверяет соединение.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Msg("[DB] подключение установлено")
	return NewDB(conn), nil
}

// Close закрывает пул соединений.
func (db *DB) Close() error {
	return db.Conn.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS actions (
    id                    SERIAL PRIMARY KEY,
    channel               TEXT NOT NULL,
    kind                  TEXT NOT NULL,
    desired_count         INTEGER NOT NULL DEFAULT 0,
    time_window_seconds   INTEGER NOT NULL,
    spread_percent        INTEGER NOT NULL DEFAULT 0,
    tone_counts           JSONB NOT NULL DEFAULT '{}',
    custom_prompt         TEXT NOT NULL DEFAULT '',
    start_delay_seconds   INTEGER NOT NULL DEFAULT 0,
    send_interval_seconds INTEGER NOT NULL DEFAULT 0,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS execution_results (
    id          BIGSERIAL PRIMARY KEY,
    run_id      UUID NOT NULL,
    action_id   INTEGER NOT NULL,
    account_id  TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    reason      TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    count       INTEGER NOT NULL DEFAULT 0,
    tone_counts JSONB,
    created_at  TIMESTAMPTZ NOT NULL,
    UNIQUE (run_id, account_id)
);

CREATE TABLE IF NOT EXISTS action_runs (
    run_id      UUID PRIMARY KEY,
    action_id   INTEGER NOT NULL,
    state       TEXT NOT NULL,
    no_accounts BOOLEAN NOT NULL DEFAULT FALSE,
    total       INTEGER NOT NULL,
    succeeded   INTEGER NOT NULL,
    skipped     INTEGER NOT NULL,
    failed      INTEGER NOT NULL,
    performed   INTEGER NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE accounts ADD COLUMN IF NOT EXISTS floodwait_until TIMESTAMPTZ;
`

// EnsureSchema создаёт таблицы действий и результатов, если их ещё нет.
// Таблицы accounts, proxy и account_session ведёт сервис авторизации.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
