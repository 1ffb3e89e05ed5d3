package scoring

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trivio-gg/trivio/internal/database"
	"github.com/trivio-gg/trivio/internal/models"
)

type fakeStore struct {
	claims   map[string]int64
	parts    []models.Participant
	ratings  map[int64]int
	claimErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		claims:  make(map[string]int64),
		ratings: make(map[int64]int),
	}
}

func (s *fakeStore) RecordClaim(ctx context.Context, roomID string, questionIndex int, userID int64, txHash string) error {
	if s.claimErr != nil {
		return s.claimErr
	}
	key := fmt.Sprintf("%s/%d", roomID, questionIndex)
	if _, dup := s.claims[key]; dup {
		return database.ErrDuplicateClaim
	}
	s.claims[key] = userID
	return nil
}

func (s *fakeStore) ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	return s.parts, nil
}

func (s *fakeStore) GetRating(ctx context.Context, userID int64) (int, error) {
	if r, ok := s.ratings[userID]; ok {
		return r, nil
	}
	return database.DefaultRating, nil
}

func (s *fakeStore) UpsertRating(ctx context.Context, userID int64, rating int) error {
	s.ratings[userID] = rating
	return nil
}

func testKeeper(store *fakeStore) *Keeper {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewKeeper(store, nil, log)
}

func TestRatingAfter(t *testing.T) {
	assert.Equal(t, 1270, RatingAfter(1200, 7))
	assert.Equal(t, 1200, RatingAfter(1200, 0))
	// Ratings below the base are lifted to it first.
	assert.Equal(t, 1230, RatingAfter(900, 3))
	assert.Equal(t, 1510, RatingAfter(1500, 1))
}

func TestRecordClaimSwallowsDuplicate(t *testing.T) {
	store := newFakeStore()
	k := testKeeper(store)
	ctx := context.Background()

	require.NoError(t, k.RecordClaim(ctx, "r1", 0, 7, "claim_r1_0_7_1"))
	// The unique index rejects the second claim; the keeper logs and
	// swallows it.
	require.NoError(t, k.RecordClaim(ctx, "r1", 0, 8, "claim_r1_0_8_2"))

	assert.Equal(t, int64(7), store.claims["r1/0"])
}

func TestRecordClaimPropagatesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.claimErr = fmt.Errorf("connection refused")
	k := testKeeper(store)

	err := k.RecordClaim(context.Background(), "r1", 0, 7, "tx")
	assert.Error(t, err)
}

func TestFinalizeStandingsSortsAndPersists(t *testing.T) {
	store := newFakeStore()
	store.parts = []models.Participant{
		{RoomID: "r1", UserID: 3, Name: "carol", Score: 2},
		{RoomID: "r1", UserID: 1, Name: "alice", Score: 7},
		{RoomID: "r1", UserID: 2, Name: "bob", Score: 2},
	}
	store.ratings[1] = 1350
	k := testKeeper(store)

	standings, err := k.FinalizeStandings(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, standings, 3)

	// Score descending, userId ascending on ties.
	assert.Equal(t, int64(1), standings[0].UserID)
	assert.Equal(t, int64(2), standings[1].UserID)
	assert.Equal(t, int64(3), standings[2].UserID)

	assert.Equal(t, 1420, standings[0].NewRating) // 1350 + 70
	assert.Equal(t, 1220, standings[1].NewRating)
	assert.Equal(t, 1220, standings[2].NewRating)

	assert.Equal(t, 1420, store.ratings[1])
	assert.Equal(t, 1220, store.ratings[2])
	assert.Equal(t, 1220, store.ratings[3])
}
