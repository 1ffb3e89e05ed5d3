// Package room is the authoritative membership store: who is seated in
// which room, with capacity and single-room-per-user enforced by the
// relational layer.
package room

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/trivio-gg/trivio/internal/auth"
	"github.com/trivio-gg/trivio/internal/database"
	"github.com/trivio-gg/trivio/internal/models"
	"github.com/trivio-gg/trivio/internal/protocol"
)

// Store wraps the relational participant set with password checks and
// protocol-level error mapping.
type Store struct {
	db  *database.DB
	log *logrus.Logger
}

func NewStore(db *database.DB, log *logrus.Logger) *Store {
	return &Store{db: db, log: log}
}

// Join seats the user. The password is verified against the room's
// argon2id hash before the join transaction runs; open rooms ignore it.
func (s *Store) Join(ctx context.Context, userID int64, roomID, password string) (*models.Participant, *models.Room, error) {
	rm, err := s.db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, mapJoinError(err)
	}
	if !rm.IsActive {
		return nil, nil, protocol.ErrRoomNotFound
	}
	if rm.PasswordHash != nil {
		ok, err := auth.ComparePasswordAndHash(password, *rm.PasswordHash)
		if err != nil || !ok {
			return nil, nil, protocol.ErrBadPassword
		}
	}

	part, err := s.db.JoinRoom(ctx, roomID, userID)
	if err != nil {
		return nil, nil, mapJoinError(err)
	}
	return part, rm, nil
}

// Leave deletes the participant row. Idempotent.
func (s *Store) Leave(ctx context.Context, userID int64, roomID string) error {
	return s.db.LeaveRoom(ctx, roomID, userID)
}

// List returns the room's participants for lobby snapshots and final
// standings.
func (s *Store) List(ctx context.Context, roomID string) ([]models.Participant, error) {
	return s.db.ListParticipants(ctx, roomID)
}

// mapJoinError translates store sentinels into protocol errors; anything
// unexpected surfaces as Internal.
func mapJoinError(err error) error {
	switch {
	case errors.Is(err, database.ErrRoomNotFound):
		return protocol.ErrRoomNotFound
	case errors.Is(err, database.ErrRoomInactive):
		return protocol.ErrRoomNotFound
	case errors.Is(err, database.ErrRoomFull):
		return protocol.ErrRoomFull
	case errors.Is(err, database.ErrAlreadyInOtherRoom):
		return protocol.ErrAlreadyInRoom
	default:
		return err
	}
}
