package history

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trivio-gg/trivio/internal/models"
)

func testPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewPublisher(rdb, log), mr
}

func TestPublishClaim(t *testing.T) {
	p, mr := testPublisher(t)

	p.PublishClaim(context.Background(), ClaimRecord{
		RoomID:        "r1",
		QuestionIndex: 4,
		UserID:        7,
		TxHash:        "claim_r1_4_7_1700000000000",
	})

	raw, err := mr.Lpop(DefaultQueueName)
	require.NoError(t, err)

	var rec ClaimRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, "answer_claim", rec.Kind)
	assert.Equal(t, "r1", rec.RoomID)
	assert.Equal(t, 4, rec.QuestionIndex)
	assert.Equal(t, int64(7), rec.UserID)
	assert.NotZero(t, rec.Timestamp)
}

func TestPublishQuizFinished(t *testing.T) {
	p, mr := testPublisher(t)

	p.PublishQuizFinished(context.Background(), "r1", []models.Standing{
		{UserID: 1, UserName: "alice", Score: 7, NewRating: 1270},
	})

	raw, err := mr.Lpop(DefaultQueueName)
	require.NoError(t, err)

	var rec FinishRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, "quiz_finished", rec.Kind)
	require.Len(t, rec.Standings, 1)
	assert.Equal(t, 1270, rec.Standings[0].NewRating)
}

func TestUpdateLeaderboard(t *testing.T) {
	p, _ := testPublisher(t)
	ctx := context.Background()

	p.UpdateLeaderboard(ctx, []models.Standing{
		{UserID: 1, NewRating: 1270},
		{UserID: 2, NewRating: 1350},
	})

	top, err := p.TopRatings(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "2", top[0].Member)
	assert.Equal(t, float64(1350), top[0].Score)
}

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	ctx := context.Background()

	p.PublishClaim(ctx, ClaimRecord{})
	p.PublishQuizFinished(ctx, "r1", nil)
	p.UpdateLeaderboard(ctx, nil)

	top, err := p.TopRatings(ctx, 5)
	assert.NoError(t, err)
	assert.Nil(t, top)
}
