// Package scoring persists winning claims and computes final standings
// and rating updates on quiz completion.
package scoring

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/trivio-gg/trivio/internal/database"
	"github.com/trivio-gg/trivio/internal/history"
	"github.com/trivio-gg/trivio/internal/models"
)

// BaseRating is the floor applied before the score bonus: players below
// it are lifted to it at quiz end.
const BaseRating = database.DefaultRating

// pointsPerWin is the rating bonus per first-correct answer.
const pointsPerWin = 10

// Store is the slice of the relational layer the keeper needs.
type Store interface {
	RecordClaim(ctx context.Context, roomID string, questionIndex int, userID int64, txHash string) error
	ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error)
	GetRating(ctx context.Context, userID int64) (int, error)
	UpsertRating(ctx context.Context, userID int64, rating int) error
}

// Keeper is the scoring and rating updater.
type Keeper struct {
	store Store
	hist  *history.Publisher
	log   *logrus.Logger
}

func NewKeeper(store Store, hist *history.Publisher, log *logrus.Logger) *Keeper {
	return &Keeper{store: store, hist: hist, log: log}
}

// RecordClaim persists the first-correct-answer claim and the score
// increment in one transaction. A duplicate-claim conflict means the
// engine's in-memory arbitration was bypassed; the unique index held the
// line, so it is logged and swallowed and the engine still closes the
// round with the winner it arbitrated in memory.
func (k *Keeper) RecordClaim(ctx context.Context, roomID string, questionIndex int, userID int64, txHash string) error {
	err := k.store.RecordClaim(ctx, roomID, questionIndex, userID, txHash)
	if errors.Is(err, database.ErrDuplicateClaim) {
		k.log.WithFields(logrus.Fields{
			"room": roomID, "question": questionIndex, "user": userID,
		}).Warn("duplicate claim suppressed by unique index")
		return nil
	}
	if err != nil {
		return err
	}

	k.hist.PublishClaim(ctx, history.ClaimRecord{
		RoomID:        roomID,
		QuestionIndex: questionIndex,
		UserID:        userID,
		TxHash:        txHash,
	})
	return nil
}

// RatingAfter computes a participant's post-quiz rating from their
// previous rating and final score.
func RatingAfter(prev, score int) int {
	base := prev
	if base < BaseRating {
		base = BaseRating
	}
	return base + score*pointsPerWin
}

// FinalizeStandings recomputes and persists every participant's rating,
// then returns the standings sorted by score descending, userId
// ascending on ties.
func (k *Keeper) FinalizeStandings(ctx context.Context, roomID string) ([]models.Standing, error) {
	parts, err := k.store.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}

	standings := make([]models.Standing, 0, len(parts))
	for _, p := range parts {
		prev, err := k.store.GetRating(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		newRating := RatingAfter(prev, p.Score)
		if err := k.store.UpsertRating(ctx, p.UserID, newRating); err != nil {
			return nil, err
		}
		standings = append(standings, models.Standing{
			UserID:    p.UserID,
			UserName:  p.Name,
			Score:     p.Score,
			NewRating: newRating,
		})
	}

	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].UserID < standings[j].UserID
	})

	k.hist.PublishQuizFinished(ctx, roomID, standings)
	k.hist.UpdateLeaderboard(ctx, standings)
	return standings, nil
}
