package database

import (
	"context"
	"fmt"
)

// migrations are applied in order by the migrate subcommand. Each
// statement is idempotent so re-running is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		email         TEXT UNIQUE NOT NULL,
		name          TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		is_admin      BOOLEAN NOT NULL DEFAULT false,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id            TEXT PRIMARY KEY,
		host_id       BIGINT NOT NULL REFERENCES users(id),
		name          TEXT NOT NULL DEFAULT '',
		is_active     BOOLEAN NOT NULL DEFAULT true,
		max_players   INT NOT NULL CHECK (max_players BETWEEN 2 AND 10),
		password_hash TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS room_participants (
		id        BIGSERIAL PRIMARY KEY,
		room_id   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		user_id   BIGINT NOT NULL REFERENCES users(id),
		score     INT NOT NULL DEFAULT 0 CHECK (score >= 0),
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id          BIGSERIAL PRIMARY KEY,
		text        TEXT NOT NULL,
		options     TEXT[] NOT NULL CHECK (array_length(options, 1) = 4),
		correct_idx INT NOT NULL CHECK (correct_idx BETWEEN 0 AND 3)
	)`,
	`CREATE TABLE IF NOT EXISTS answer_claims (
		id             BIGSERIAL PRIMARY KEY,
		room_id        TEXT NOT NULL,
		question_index INT NOT NULL,
		user_id        BIGINT NOT NULL REFERENCES users(id),
		tx_hash        TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (room_id, question_index)
	)`,
	`CREATE TABLE IF NOT EXISTS player_ratings (
		user_id    BIGINT PRIMARY KEY REFERENCES users(id),
		rating     INT NOT NULL DEFAULT 1200,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_room_participants_user ON room_participants(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_answer_claims_user ON answer_claims(room_id, user_id)`,
}

// Migrate applies the schema.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
