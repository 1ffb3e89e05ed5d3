package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trivio-gg/trivio/internal/auth"
	"github.com/trivio-gg/trivio/internal/models"
	"github.com/trivio-gg/trivio/internal/protocol"
	"github.com/trivio-gg/trivio/internal/quiz"
	"github.com/trivio-gg/trivio/internal/ws"
)

type memMembers struct{}

func (memMembers) Join(ctx context.Context, userID int64, roomID, password string) (*models.Participant, *models.Room, error) {
	return &models.Participant{RoomID: roomID, UserID: userID, Name: fmt.Sprintf("user-%d", userID)},
		&models.Room{ID: roomID, HostID: 1, IsActive: true, MaxPlayers: 10},
		nil
}
func (memMembers) Leave(ctx context.Context, userID int64, roomID string) error { return nil }
func (memMembers) List(ctx context.Context, roomID string) ([]models.Participant, error) {
	return []models.Participant{{RoomID: roomID, UserID: 1, Name: "user-1"}}, nil
}

type memBank struct{}

func (memBank) SampleQuestions(ctx context.Context, n int) ([]models.Question, error) {
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{ID: int64(i), Text: "q", Options: []string{"a", "b", "c", "d"}, CorrectIdx: 0}
	}
	return qs, nil
}

type memScores struct{}

func (memScores) RecordClaim(ctx context.Context, roomID string, questionIndex int, userID int64, txHash string) error {
	return nil
}
func (memScores) FinalizeStandings(ctx context.Context, roomID string) ([]models.Standing, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *auth.JWTVerifier, *ws.Registry) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	verifier := auth.NewJWTVerifier("test-secret")
	registry := ws.NewRegistry(log)
	engine := quiz.NewEngine(quiz.DefaultConfig(), log, memMembers{}, memBank{}, memScores{}, registry)
	registry.SetOnDetach(func(c *ws.Client, roomID string) {
		engine.Leave(context.Background(), c.UserID, roomID)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", WSHandler(log, verifier, registry, engine))
	mux.HandleFunc("/health", HealthHandler(registry))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, verifier, registry
}

func wsURL(srv *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func dial(t *testing.T, srv *httptest.Server, verifier *auth.JWTVerifier, userID int64) *websocket.Conn {
	t.Helper()
	token, err := verifier.MintToken(userID, time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "test done") })
	return c
}

// readFrame reads frames until one of the wanted kind arrives.
func readFrame(t *testing.T, c *websocket.Conn, kind protocol.Kind) protocol.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var f protocol.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == kind {
			return f
		}
	}
}

func send(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv, ""), nil)
	require.NoError(t, err)

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv, "bogus"), nil)
	require.NoError(t, err)

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestHandshakeAcceptsBearerHeader(t *testing.T) {
	srv, verifier, _ := newTestServer(t)

	token, err := verifier.MintToken(5, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv, ""), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	f := readFrame(t, c, protocol.KindConnected)
	var p protocol.ConnectedPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	assert.Equal(t, int64(5), p.UserID)
	assert.NotEmpty(t, p.ConnectionID)
}

func TestJoinFlow(t *testing.T) {
	srv, verifier, _ := newTestServer(t)

	c := dial(t, srv, verifier, 1)
	readFrame(t, c, protocol.KindConnected)

	send(t, c, `{"type":"join","payload":{"roomId":"r1"}}`)
	f := readFrame(t, c, protocol.KindJoinedRoom)
	var joined protocol.JoinedRoomPayload
	require.NoError(t, json.Unmarshal(f.Payload, &joined))
	assert.Equal(t, "r1", joined.RoomID)
	require.Len(t, joined.Participants, 1)

	// A second user joining the room is announced to the first.
	c2 := dial(t, srv, verifier, 2)
	readFrame(t, c2, protocol.KindConnected)
	send(t, c2, `{"type":"join","payload":{"roomId":"r1"}}`)
	readFrame(t, c2, protocol.KindJoinedRoom)

	f = readFrame(t, c, protocol.KindParticipantJoined)
	var ann protocol.ParticipantJoinedPayload
	require.NoError(t, json.Unmarshal(f.Payload, &ann))
	assert.Equal(t, int64(2), ann.UserID)
}

func TestBadFrameGetsErrorWithoutClose(t *testing.T) {
	srv, verifier, _ := newTestServer(t)

	c := dial(t, srv, verifier, 1)
	readFrame(t, c, protocol.KindConnected)

	send(t, c, `this is not json`)
	f := readFrame(t, c, protocol.KindError)
	var e protocol.Err
	require.NoError(t, json.Unmarshal(f.Payload, &e))
	assert.Equal(t, 400, e.Code)

	// Connection is still usable.
	send(t, c, `{"type":"join","payload":{"roomId":"r1"}}`)
	readFrame(t, c, protocol.KindJoinedRoom)
}

func TestConnectionCapClosesExtraConnection(t *testing.T) {
	srv, verifier, _ := newTestServer(t)

	for i := 0; i < ws.MaxConnectionsPerUser; i++ {
		c := dial(t, srv, verifier, 9)
		readFrame(t, c, protocol.KindConnected)
	}

	token, err := verifier.MintToken(9, time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv, token), nil)
	require.NoError(t, err)

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestRateLimitEmitsErrorFrame(t *testing.T) {
	srv, verifier, _ := newTestServer(t)

	c := dial(t, srv, verifier, 1)
	readFrame(t, c, protocol.KindConnected)

	// Blow through the window budget with unknown-room startQuiz frames; the
	// overage frames are dropped with a 429.
	for i := 0; i < ws.RateLimitMax+3; i++ {
		send(t, c, `{"type":"startQuiz","payload":{"roomId":"missing"}}`)
	}

	saw429 := false
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !saw429 {
		f := readFrame(t, c, protocol.KindError)
		var e protocol.Err
		require.NoError(t, json.Unmarshal(f.Payload, &e))
		if e.Code == 429 {
			saw429 = true
		}
	}
	assert.True(t, saw429)
}

func TestHealthEndpoint(t *testing.T) {
	srv, verifier, _ := newTestServer(t)

	c := dial(t, srv, verifier, 1)
	readFrame(t, c, protocol.KindConnected)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Connections)
}
