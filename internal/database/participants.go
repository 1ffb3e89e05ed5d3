package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/trivio-gg/trivio/internal/models"
)

// Failure modes of the join transaction.
var (
	ErrRoomInactive       = errors.New("room inactive")
	ErrRoomFull           = errors.New("room full")
	ErrAlreadyInOtherRoom = errors.New("user already in another room")
)

// JoinRoom seats userID in roomID and returns the participant row with
// the user's display name. The whole check-then-insert runs in one
// serializable transaction so concurrent joins cannot exceed the room's
// capacity. Re-joining the same room is a no-op that returns the
// existing row.
func (db *DB) JoinRoom(ctx context.Context, roomID string, userID int64) (*models.Participant, error) {
	var p models.Participant
	err := pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		var isActive bool
		var maxPlayers int
		err := tx.QueryRow(ctx,
			`SELECT is_active, max_players FROM rooms WHERE id=$1`, roomID,
		).Scan(&isActive, &maxPlayers)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		if !isActive {
			return ErrRoomInactive
		}

		var name string
		if err := tx.QueryRow(ctx, `SELECT name FROM users WHERE id=$1`, userID).Scan(&name); err != nil {
			return err
		}

		// Idempotent re-join: the existing row wins.
		err = tx.QueryRow(ctx,
			`SELECT room_id, user_id, score, joined_at FROM room_participants
			 WHERE room_id=$1 AND user_id=$2`, roomID, userID,
		).Scan(&p.RoomID, &p.UserID, &p.Score, &p.JoinedAt)
		if err == nil {
			p.Name = name
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var elsewhere int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM room_participants WHERE user_id=$1 AND room_id<>$2`,
			userID, roomID,
		).Scan(&elsewhere); err != nil {
			return err
		}
		if elsewhere > 0 {
			return ErrAlreadyInOtherRoom
		}

		var seated int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM room_participants WHERE room_id=$1`, roomID,
		).Scan(&seated); err != nil {
			return err
		}
		if seated >= maxPlayers {
			return ErrRoomFull
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO room_participants (room_id, user_id)
			 VALUES ($1, $2)
			 RETURNING room_id, user_id, score, joined_at`,
			roomID, userID,
		).Scan(&p.RoomID, &p.UserID, &p.Score, &p.JoinedAt)
		if err != nil {
			return err
		}
		p.Name = name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LeaveRoom deletes the participant row. Idempotent.
func (db *DB) LeaveRoom(ctx context.Context, roomID string, userID int64) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM room_participants WHERE room_id=$1 AND user_id=$2`,
		roomID, userID,
	)
	return err
}

// ListParticipants returns the room's participants with display names,
// ordered by join time.
func (db *DB) ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT p.room_id, p.user_id, u.name, p.score, p.joined_at
		FROM room_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.room_id = $1
		ORDER BY p.joined_at
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.Name, &p.Score, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
