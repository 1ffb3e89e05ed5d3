package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// DefaultRating is the rating assigned to players with no rating row.
const DefaultRating = 1200

// GetRating returns the player's current rating, or DefaultRating when no
// row exists yet.
func (db *DB) GetRating(ctx context.Context, userID int64) (int, error) {
	var rating int
	err := db.Pool.QueryRow(ctx,
		`SELECT rating FROM player_ratings WHERE user_id=$1`, userID,
	).Scan(&rating)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultRating, nil
	}
	if err != nil {
		return 0, err
	}
	return rating, nil
}

// UpsertRating persists the player's new rating.
func (db *DB) UpsertRating(ctx context.Context, userID int64, rating int) error {
	return pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO player_ratings (user_id, rating, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_id) DO UPDATE SET rating = EXCLUDED.rating, updated_at = now()
		`, userID, rating)
		return err
	})
}
