// Package quiz drives the per-room quiz lifecycle: question selection,
// deadlines, first-correct-answer arbitration and lifecycle broadcasts.
package quiz

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trivio-gg/trivio/internal/models"
	"github.com/trivio-gg/trivio/internal/protocol"
)

// Config carries the lifecycle constants. Production uses DefaultConfig;
// tests shrink the delays.
type Config struct {
	QuestionsPerQuiz int
	StartDelay       time.Duration
	QuestionTime     time.Duration
	RevealDelay      time.Duration
	DeadRoomTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		QuestionsPerQuiz: 10,
		StartDelay:       5 * time.Second,
		QuestionTime:     10 * time.Second,
		RevealDelay:      3 * time.Second,
		DeadRoomTTL:      30 * time.Minute,
	}
}

// Membership is the authoritative participant store (the relational
// side of joining and leaving).
type Membership interface {
	Join(ctx context.Context, userID int64, roomID, password string) (*models.Participant, *models.Room, error)
	Leave(ctx context.Context, userID int64, roomID string) error
	List(ctx context.Context, roomID string) ([]models.Participant, error)
}

// QuestionBank selects quiz questions.
type QuestionBank interface {
	SampleQuestions(ctx context.Context, n int) ([]models.Question, error)
}

// ScoreKeeper persists winning claims and computes final standings.
type ScoreKeeper interface {
	RecordClaim(ctx context.Context, roomID string, questionIndex int, userID int64, txHash string) error
	FinalizeStandings(ctx context.Context, roomID string) ([]models.Standing, error)
}

// Broadcaster fans a serialized frame out to every connection joined to
// a room.
type Broadcaster interface {
	Broadcast(roomID string, frame []byte)
}

// Engine owns all transient per-room quiz state. One Engine serves the
// whole process; each room inside it is a serial domain guarded by its
// own lock.
type Engine struct {
	cfg     Config
	log     *logrus.Logger
	members Membership
	bank    QuestionBank
	scores  ScoreKeeper
	cast    Broadcaster

	mu    sync.Mutex
	rooms map[string]*room
}

func NewEngine(cfg Config, log *logrus.Logger, members Membership, bank QuestionBank, scores ScoreKeeper, cast Broadcaster) *Engine {
	return &Engine{
		cfg:     cfg,
		log:     log,
		members: members,
		bank:    bank,
		scores:  scores,
		cast:    cast,
		rooms:   make(map[string]*room),
	}
}

// Join seats the user in the room (durable membership first, then the
// in-memory mirror) and announces them to the room. Returns the lobby
// snapshot for the joinedRoom reply. Re-joining is idempotent and
// announces nothing.
func (e *Engine) Join(ctx context.Context, userID int64, roomID, password string) (*protocol.JoinedRoomPayload, error) {
	part, rm, err := e.members.Join(ctx, userID, roomID, password)
	if err != nil {
		return nil, err
	}

	r := e.getOrCreateRoom(roomID, rm.HostID)

	r.mu.Lock()
	_, already := r.participants[userID]
	r.participants[userID] = part.Name
	r.mu.Unlock()

	if !already {
		e.broadcast(roomID, protocol.KindParticipantJoined, protocol.ParticipantJoinedPayload{
			RoomID:   roomID,
			UserID:   userID,
			UserName: part.Name,
		})
	}

	parts, err := e.members.List(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &protocol.JoinedRoomPayload{RoomID: roomID, Participants: parts}, nil
}

// Leave removes the user from the room, durable store first. Idempotent;
// used both for explicit leaveRoom frames and connection detach. If the
// last participant leaves, the room dies and any pending quizFinished is
// skipped.
func (e *Engine) Leave(ctx context.Context, userID int64, roomID string) {
	if err := e.members.Leave(ctx, userID, roomID); err != nil {
		e.log.WithFields(logrus.Fields{"room": roomID, "user": userID, "error": err}).
			Warn("membership leave failed")
	}

	r := e.getRoom(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	_, present := r.participants[userID]
	delete(r.participants, userID)
	empty := len(r.participants) == 0
	if empty && r.phase != phaseDead {
		r.dieLocked()
	}
	r.mu.Unlock()

	if present && !empty {
		e.broadcast(roomID, protocol.KindParticipantLeft, protocol.ParticipantLeftPayload{
			RoomID: roomID,
			UserID: userID,
		})
	}
}

// StartQuiz transitions the room from Lobby to Starting. Only the host
// may start; the question sample is drawn outside the room lock.
func (e *Engine) StartQuiz(ctx context.Context, userID int64, roomID string) error {
	r := e.getRoom(roomID)
	if r == nil {
		return protocol.ErrRoomNotFound
	}

	r.mu.Lock()
	if _, ok := r.participants[userID]; !ok {
		r.mu.Unlock()
		return protocol.ErrNotParticipant
	}
	if r.hostID != userID {
		r.mu.Unlock()
		return protocol.ErrNotHost
	}
	if r.phase != phaseLobby {
		r.mu.Unlock()
		return protocol.ErrQuizAlreadyRun
	}
	// Claim the transition before the (blocking) bank query so a
	// concurrent startQuiz fails fast.
	r.phase = phaseStarting
	r.mu.Unlock()

	questions, err := e.bank.SampleQuestions(ctx, e.cfg.QuestionsPerQuiz)
	if err != nil {
		r.mu.Lock()
		if r.phase == phaseStarting {
			r.phase = phaseLobby
		}
		r.mu.Unlock()
		return protocol.ErrInsufficientBank
	}

	r.mu.Lock()
	if r.phase != phaseStarting {
		// Room died while we were querying the bank.
		r.mu.Unlock()
		return protocol.ErrRoomNotFound
	}
	r.questions = questions
	startsAt := time.Now().Add(e.cfg.StartDelay)
	gen := r.armTimerLocked(e.cfg.StartDelay, func() { e.beginQuestion(r, 0) })
	r.mu.Unlock()

	e.log.WithFields(logrus.Fields{"room": roomID, "host": userID, "timerGen": gen}).
		Info("quiz starting")
	e.broadcast(roomID, protocol.KindQuizStarting, protocol.QuizStartingPayload{
		RoomID:   roomID,
		StartsAt: protocol.Timestamp(startsAt),
	})
	return nil
}

// SubmitAnswer applies one answer submission. Duplicate submissions
// within a round and submissions that land in the Reveal window are
// silently ignored; everything else out of order is an error.
func (e *Engine) SubmitAnswer(ctx context.Context, userID int64, roomID string, questionIndex, choiceIdx int) error {
	r := e.getRoom(roomID)
	if r == nil {
		return protocol.ErrRoomNotFound
	}

	r.mu.Lock()
	if _, ok := r.participants[userID]; !ok {
		r.mu.Unlock()
		return protocol.ErrNotParticipant
	}
	if r.phase == phaseReveal && r.current == questionIndex {
		// The round closed at the moment of claim; late answers are
		// dropped without error.
		r.mu.Unlock()
		return nil
	}
	if r.phase != phaseAsking || r.current != questionIndex {
		r.mu.Unlock()
		return protocol.ErrQuestionNotActive
	}
	if !time.Now().Before(r.expiresAt) {
		r.mu.Unlock()
		return protocol.ErrQuestionExpired
	}
	if _, dup := r.answered[userID]; dup {
		r.mu.Unlock()
		return nil
	}
	r.answered[userID] = struct{}{}

	q := r.questions[questionIndex]
	if choiceIdx != q.CorrectIdx {
		r.mu.Unlock()
		return nil
	}

	// First correct claim. The check-and-set runs under the room lock,
	// so exactly one concurrent correct submission gets here.
	if r.firstCorrect != nil {
		r.mu.Unlock()
		return nil
	}
	uid := userID
	r.firstCorrect = &uid
	r.stopTimerLocked()
	r.phase = phaseReveal
	r.mu.Unlock()

	e.settleClaim(ctx, r, questionIndex, userID, q.CorrectIdx)
	return nil
}

// settleClaim persists the winning claim and closes the round. Store
// failure here kills the room after a best-effort quizFinished (no
// retries).
func (e *Engine) settleClaim(ctx context.Context, r *room, questionIndex int, userID int64, correctIdx int) {
	txHash := claimTxHash(r.id, questionIndex, userID, time.Now())
	if err := e.scores.RecordClaim(ctx, r.id, questionIndex, userID, txHash); err != nil {
		e.log.WithFields(logrus.Fields{
			"room": r.id, "question": questionIndex, "user": userID, "error": err,
		}).Error("failed to persist winning claim")
		e.finishQuiz(r, true)
		return
	}

	winner := userID
	e.broadcast(r.id, protocol.KindEndQuestion, protocol.EndQuestionPayload{
		QuestionIndex: questionIndex,
		CorrectIdx:    correctIdx,
		WinnerUserID:  &winner,
	})

	r.mu.Lock()
	if r.phase == phaseReveal {
		r.armTimerLocked(e.cfg.RevealDelay, func() { e.advance(r, questionIndex) })
	}
	r.mu.Unlock()
}

// beginQuestion enters Asking(i): stamps the window, clears round state,
// broadcasts nextQuestion and arms the deadline timer.
func (e *Engine) beginQuestion(r *room, i int) {
	r.mu.Lock()
	if r.phase == phaseDead || i >= len(r.questions) {
		r.mu.Unlock()
		return
	}
	r.phase = phaseAsking
	r.current = i
	r.startedAt = time.Now()
	r.expiresAt = r.startedAt.Add(e.cfg.QuestionTime)
	r.answered = make(map[int64]struct{})
	r.firstCorrect = nil
	r.expired = false
	q := r.questions[i]
	payload := protocol.NextQuestionPayload{
		QuestionIndex: i,
		Question:      q,
		StartedAt:     protocol.Timestamp(r.startedAt),
		ExpiresAt:     protocol.Timestamp(r.expiresAt),
	}
	r.armTimerLocked(e.cfg.QuestionTime, func() { e.questionDeadline(r, i) })
	r.mu.Unlock()

	e.broadcast(r.id, protocol.KindNextQuestion, payload)
}

// questionDeadline fires when Asking(i) expires with no winner. A stale
// fire (the claim already closed the round) is a no-op.
func (e *Engine) questionDeadline(r *room, i int) {
	r.mu.Lock()
	if r.phase != phaseAsking || r.current != i {
		r.mu.Unlock()
		return
	}
	r.expired = true
	r.phase = phaseReveal
	correctIdx := r.questions[i].CorrectIdx
	r.armTimerLocked(e.cfg.RevealDelay, func() { e.advance(r, i) })
	r.mu.Unlock()

	e.broadcast(r.id, protocol.KindEndQuestion, protocol.EndQuestionPayload{
		QuestionIndex: i,
		CorrectIdx:    correctIdx,
		WinnerUserID:  nil,
	})
}

// advance moves from Reveal(i) to Asking(i+1), or finishes after the
// last question.
func (e *Engine) advance(r *room, i int) {
	r.mu.Lock()
	if r.phase != phaseReveal || r.current != i {
		r.mu.Unlock()
		return
	}
	last := i+1 >= len(r.questions)
	r.mu.Unlock()

	if last {
		e.finishQuiz(r, false)
		return
	}
	e.beginQuestion(r, i+1)
}

// finishQuiz computes final standings, fans them out and marks the room
// Dead. When the room is already empty the broadcast is skipped.
func (e *Engine) finishQuiz(r *room, storeFailed bool) {
	r.mu.Lock()
	if r.phase == phaseDead {
		r.mu.Unlock()
		return
	}
	r.phase = phaseFinished
	empty := len(r.participants) == 0
	r.mu.Unlock()

	if !empty {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		standings, err := e.scores.FinalizeStandings(ctx, r.id)
		cancel()
		if err != nil {
			e.log.WithFields(logrus.Fields{"room": r.id, "error": err}).
				Error("failed to finalize standings")
		} else {
			e.broadcast(r.id, protocol.KindQuizFinished, protocol.QuizFinishedPayload{
				Standings: standings,
			})
		}
	}

	r.mu.Lock()
	r.dieLocked()
	r.mu.Unlock()

	e.log.WithFields(logrus.Fields{"room": r.id, "storeFailed": storeFailed}).
		Info("quiz finished")
}

// IsParticipant reports whether the user is currently seated in the
// room's in-memory mirror.
func (e *Engine) IsParticipant(userID int64, roomID string) bool {
	r := e.getRoom(roomID)
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[userID]
	return ok
}

// Sweep expunges rooms that have been Dead longer than the configured
// TTL. Invoked by the supervisor's periodic cleanup.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, r := range e.rooms {
		r.mu.Lock()
		dead := r.phase == phaseDead && now.Sub(r.deadAt) > e.cfg.DeadRoomTTL
		r.mu.Unlock()
		if dead {
			delete(e.rooms, id)
			removed++
		}
	}
	return removed
}

// Shutdown cancels every room timer and marks all rooms Dead. Called
// once during graceful shutdown.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	rooms := make([]*room, 0, len(e.rooms))
	for _, r := range e.rooms {
		rooms = append(rooms, r)
	}
	e.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		if r.phase != phaseDead {
			r.dieLocked()
		}
		r.mu.Unlock()
	}
}

func (e *Engine) getRoom(roomID string) *room {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rooms[roomID]
}

func (e *Engine) getOrCreateRoom(roomID string, hostID int64) *room {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rooms[roomID]
	if ok {
		r.mu.Lock()
		if r.phase != phaseDead {
			r.mu.Unlock()
			return r
		}
		// A finished room left behind by an earlier quiz; start fresh.
		r.mu.Unlock()
	}
	r = newRoom(roomID, hostID)
	e.rooms[roomID] = r
	return r
}

func (e *Engine) broadcast(roomID string, kind protocol.Kind, payload any) {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		e.log.WithFields(logrus.Fields{"room": roomID, "kind": kind, "error": err}).
			Error("failed to encode broadcast frame")
		return
	}
	e.cast.Broadcast(roomID, frame)
}
