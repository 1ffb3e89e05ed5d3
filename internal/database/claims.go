package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateClaim means a claim row already exists for the
// (room, question) pair. The unique index is the durable backstop for the
// engine's in-memory first-correct arbitration.
var ErrDuplicateClaim = errors.New("claim already recorded for this question")

const uniqueViolation = "23505"

// RecordClaim inserts the first-correct-answer claim and increments the
// claimer's participant score in a single transaction, keeping score ==
// number of owned claims.
func (db *DB) RecordClaim(ctx context.Context, roomID string, questionIndex int, userID int64, txHash string) error {
	err := pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO answer_claims (room_id, question_index, user_id, tx_hash)
			 VALUES ($1, $2, $3, $4)`,
			roomID, questionIndex, userID, txHash,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE room_participants SET score = score + 1
			 WHERE room_id=$1 AND user_id=$2`,
			roomID, userID,
		)
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateClaim
	}
	return err
}

// CountClaims reports how many claims a user owns in a room.
func (db *DB) CountClaims(ctx context.Context, roomID string, userID int64) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM answer_claims WHERE room_id=$1 AND user_id=$2`,
		roomID, userID,
	).Scan(&n)
	return n, err
}
