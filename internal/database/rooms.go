package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/trivio-gg/trivio/internal/models"
)

// ErrRoomNotFound is returned when a room id does not resolve to a row.
var ErrRoomNotFound = errors.New("room not found")

func (db *DB) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var r models.Room
	q := `
	SELECT id, host_id, name, is_active, max_players, password_hash, created_at
	FROM rooms
	WHERE id=$1
	`
	err := db.Pool.QueryRow(ctx, q, roomID).Scan(
		&r.ID, &r.HostID, &r.Name, &r.IsActive, &r.MaxPlayers, &r.PasswordHash, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
