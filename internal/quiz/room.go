package quiz

import (
	"fmt"
	"sync"
	"time"

	"github.com/trivio-gg/trivio/internal/models"
)

// phase is the room's position in the quiz lifecycle.
type phase int

const (
	phaseLobby phase = iota
	phaseStarting
	phaseAsking
	phaseReveal
	phaseFinished
	phaseDead
)

func (p phase) String() string {
	switch p {
	case phaseLobby:
		return "lobby"
	case phaseStarting:
		return "starting"
	case phaseAsking:
		return "asking"
	case phaseReveal:
		return "reveal"
	case phaseFinished:
		return "finished"
	default:
		return "dead"
	}
}

// room is the transient per-room state. Every field is guarded by mu;
// nothing outside the engine may touch it. Timer callbacks re-acquire
// mu and validate (phase, timerGen) before acting, so a fire that lost
// the race against cancellation is a no-op.
type room struct {
	id     string
	hostID int64

	mu           sync.Mutex
	phase        phase
	participants map[int64]string // userID -> display name at join time

	questions []models.Question
	current   int
	startedAt time.Time
	expiresAt time.Time
	answered  map[int64]struct{}
	// firstCorrect holds the winner once claimed; nil while the round
	// is open or after a timeout.
	firstCorrect *int64
	expired      bool

	timer    *time.Timer
	timerGen int
	deadAt   time.Time
}

func newRoom(id string, hostID int64) *room {
	return &room{
		id:           id,
		hostID:       hostID,
		phase:        phaseLobby,
		participants: make(map[int64]string),
	}
}

// armTimerLocked replaces any pending timer with a new single-shot one.
// The generation counter makes a fire that raced the replacement
// harmless: the callback only runs the engine transition if it is still
// the latest. Caller holds mu.
func (r *room) armTimerLocked(d time.Duration, fn func()) int {
	r.stopTimerLocked()
	r.timerGen++
	gen := r.timerGen
	r.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		stale := r.timerGen != gen || r.phase == phaseDead
		r.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
	return gen
}

// stopTimerLocked cancels the pending timer, if any. Caller holds mu.
func (r *room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++
}

// dieLocked terminates the room: timers cancelled, phase Dead, death
// stamped for the sweep. Caller holds mu.
func (r *room) dieLocked() {
	r.stopTimerLocked()
	r.phase = phaseDead
	r.deadAt = time.Now()
}

// claimTxHash builds the synthetic transaction hash recorded with a
// winning claim.
func claimTxHash(roomID string, questionIndex int, userID int64, at time.Time) string {
	return fmt.Sprintf("claim_%s_%d_%d_%d", roomID, questionIndex, userID, at.UnixMilli())
}
