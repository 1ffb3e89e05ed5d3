// Package history publishes durable quiz events to Redis for downstream
// consumers (audit trail, global leaderboard). Redis is auxiliary: every
// publish is best-effort and a nil Publisher is a no-op, so the session
// core never depends on it for correctness.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/trivio-gg/trivio/internal/models"
)

// DefaultQueueName is the Redis list the event records are pushed to.
const DefaultQueueName = "trivio_events"

// LeaderboardKey is the sorted set mirroring current player ratings.
const LeaderboardKey = "trivio:leaderboard"

const publishTimeout = 2 * time.Second

// ClaimRecord is the event pushed for every persisted answer claim.
type ClaimRecord struct {
	Kind          string `json:"kind"`
	RoomID        string `json:"room_id"`
	QuestionIndex int    `json:"question_index"`
	UserID        int64  `json:"user_id"`
	TxHash        string `json:"tx_hash"`
	Timestamp     int64  `json:"timestamp"`
}

// FinishRecord is the event pushed when a quiz completes.
type FinishRecord struct {
	Kind      string            `json:"kind"`
	RoomID    string            `json:"room_id"`
	Standings []models.Standing `json:"standings"`
	Timestamp int64             `json:"timestamp"`
}

// Publisher pushes event records onto the queue. Construct with
// NewPublisher; a nil *Publisher is valid and drops everything.
type Publisher struct {
	rdb   *redis.Client
	log   *logrus.Logger
	queue string
}

// Connect initializes a Redis client and verifies connectivity.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func NewPublisher(rdb *redis.Client, log *logrus.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: log, queue: DefaultQueueName}
}

// PublishClaim pushes a claim record onto the event queue.
func (p *Publisher) PublishClaim(ctx context.Context, rec ClaimRecord) {
	if p == nil {
		return
	}
	rec.Kind = "answer_claim"
	rec.Timestamp = time.Now().UnixMilli()
	p.push(ctx, rec)
}

// PublishQuizFinished pushes the final standings onto the event queue.
func (p *Publisher) PublishQuizFinished(ctx context.Context, roomID string, standings []models.Standing) {
	if p == nil {
		return
	}
	p.push(ctx, FinishRecord{
		Kind:      "quiz_finished",
		RoomID:    roomID,
		Standings: standings,
		Timestamp: time.Now().UnixMilli(),
	})
}

// UpdateLeaderboard mirrors the new ratings into the leaderboard sorted
// set.
func (p *Publisher) UpdateLeaderboard(ctx context.Context, standings []models.Standing) {
	if p == nil {
		return
	}
	members := make([]redis.Z, 0, len(standings))
	for _, s := range standings {
		members = append(members, redis.Z{
			Score:  float64(s.NewRating),
			Member: fmt.Sprintf("%d", s.UserID),
		})
	}
	if len(members) == 0 {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.rdb.ZAdd(opCtx, LeaderboardKey, members...).Err(); err != nil {
		p.log.WithField("error", err).Warn("leaderboard update failed")
	}
}

// TopRatings reads the highest-rated players from the leaderboard.
func (p *Publisher) TopRatings(ctx context.Context, n int64) ([]redis.Z, error) {
	if p == nil {
		return nil, nil
	}
	return p.rdb.ZRevRangeWithScores(ctx, LeaderboardKey, 0, n-1).Result()
}

func (p *Publisher) push(ctx context.Context, rec any) {
	data, err := json.Marshal(rec)
	if err != nil {
		p.log.WithField("error", err).Warn("failed to marshal history record")
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.rdb.RPush(opCtx, p.queue, data).Err(); err != nil {
		p.log.WithField("error", err).Warn("history publish failed")
	}
}
