// Package protocol defines the JSON wire frames exchanged with quiz
// clients and the decode-time validation applied to inbound messages.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/trivio-gg/trivio/internal/models"
)

// MaxFrameBytes caps a decoded inbound text frame. Oversized frames fail
// with ErrPayloadTooLarge before any JSON parsing happens.
const MaxFrameBytes = 1024

// Kind discriminates wire frames.
type Kind string

// Inbound frame kinds.
const (
	KindJoin         Kind = "join"
	KindStartQuiz    Kind = "startQuiz"
	KindSubmitAnswer Kind = "submitAnswer"
	KindLeaveRoom    Kind = "leaveRoom"
)

// Outbound frame kinds.
const (
	KindConnected         Kind = "connected"
	KindJoinedRoom        Kind = "joinedRoom"
	KindParticipantJoined Kind = "participantJoined"
	KindParticipantLeft   Kind = "participantLeft"
	KindQuizStarting      Kind = "quizStarting"
	KindNextQuestion      Kind = "nextQuestion"
	KindEndQuestion       Kind = "endQuestion"
	KindQuizFinished      Kind = "quizFinished"
	KindError             Kind = "error"
)

// Frame is the envelope every message travels in.
type Frame struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const maxRoomIDLen = 50

// JoinPayload seats the sender in a room. Password is only consulted for
// password-protected rooms.
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
}

type StartQuizPayload struct {
	RoomID string `json:"roomId"`
}

type SubmitAnswerPayload struct {
	RoomID        string `json:"roomId"`
	QuestionIndex int    `json:"questionIndex"`
	ChoiceIdx     int    `json:"choiceIdx"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// Inbound is a decoded, bounds-checked client message. Exactly one of the
// payload pointers is non-nil, matching Type.
type Inbound struct {
	Type      Kind
	Join      *JoinPayload
	StartQuiz *StartQuizPayload
	Submit    *SubmitAnswerPayload
	Leave     *LeaveRoomPayload
}

// Decode parses and validates a raw inbound text frame. It returns a
// protocol *Err (BadFrame, BadPayload, PayloadTooLarge) on any failure so
// callers can echo the error frame directly.
func Decode(data []byte) (*Inbound, error) {
	if len(data) > MaxFrameBytes {
		return nil, ErrPayloadTooLarge
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, ErrBadFrame
	}
	if f.Type == "" {
		return nil, ErrBadFrame
	}

	in := &Inbound{Type: f.Type}
	switch f.Type {
	case KindJoin:
		var p JoinPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, ErrBadPayload
		}
		if p.RoomID == "" || len(p.RoomID) > maxRoomIDLen {
			return nil, ErrBadPayload
		}
		in.Join = &p
	case KindStartQuiz:
		var p StartQuizPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, ErrBadPayload
		}
		if p.RoomID == "" {
			return nil, ErrBadPayload
		}
		in.StartQuiz = &p
	case KindSubmitAnswer:
		var p SubmitAnswerPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, ErrBadPayload
		}
		if p.RoomID == "" {
			return nil, ErrBadPayload
		}
		if p.QuestionIndex < 0 || p.QuestionIndex > 9 {
			return nil, ErrBadPayload
		}
		if p.ChoiceIdx < 0 || p.ChoiceIdx > 3 {
			return nil, ErrBadPayload
		}
		in.Submit = &p
	case KindLeaveRoom:
		var p LeaveRoomPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, ErrBadPayload
		}
		if p.RoomID == "" {
			return nil, ErrBadPayload
		}
		in.Leave = &p
	default:
		return nil, ErrBadFrame
	}
	return in, nil
}

// ConnectedPayload greets a freshly authenticated connection.
type ConnectedPayload struct {
	UserID       int64  `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// JoinedRoomPayload confirms a join to the joiner, with a lobby snapshot.
type JoinedRoomPayload struct {
	RoomID       string               `json:"roomId"`
	Participants []models.Participant `json:"participants"`
}

type ParticipantJoinedPayload struct {
	RoomID   string `json:"roomId"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

type ParticipantLeftPayload struct {
	RoomID string `json:"roomId"`
	UserID int64  `json:"userId"`
}

type QuizStartingPayload struct {
	RoomID   string `json:"roomId"`
	StartsAt string `json:"startsAt"`
}

type NextQuestionPayload struct {
	QuestionIndex int             `json:"questionIndex"`
	Question      models.Question `json:"question"`
	StartedAt     string          `json:"startedAt"`
	ExpiresAt     string          `json:"expiresAt"`
}

// EndQuestionPayload closes a round. WinnerUserID is nil on timeout.
type EndQuestionPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	CorrectIdx    int    `json:"correctIdx"`
	WinnerUserID  *int64 `json:"winnerUserId"`
}

type QuizFinishedPayload struct {
	Standings []models.Standing `json:"standings"`
}

// Encode marshals an outbound frame.
func Encode(kind Kind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: kind, Payload: raw})
}

// EncodeError marshals an error frame for the given protocol Err.
func EncodeError(e *Err) []byte {
	// Err marshals cleanly; the only possible failure is a programming bug.
	data, _ := Encode(KindError, e)
	return data
}

// Timestamp renders a server clock reading the way clients expect it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
