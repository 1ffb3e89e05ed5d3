// Package handlers wires the websocket gateway: handshake
// authentication, the per-connection read loop, and the health endpoint.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/trivio-gg/trivio/internal/auth"
	"github.com/trivio-gg/trivio/internal/protocol"
	"github.com/trivio-gg/trivio/internal/quiz"
	"github.com/trivio-gg/trivio/internal/ws"
)

// readLimit bounds the raw websocket read. It sits above MaxFrameBytes
// so oversized-but-bounded frames surface as a PayloadTooLarge error
// frame instead of a hard close.
const readLimit = 8 * 1024

// bearerToken extracts the session token from the Authorization header
// or the token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// WSHandler upgrades the connection, authenticates the bearer token,
// registers the client and runs its read loop until the connection
// drops.
func WSHandler(logger *logrus.Logger, verifier auth.SessionVerifier, registry *ws.Registry, engine *quiz.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")
		c.SetReadLimit(readLimit)

		if token == "" {
			c.Close(websocket.StatusPolicyViolation, closeReasonMissingToken)
			return
		}
		sess, err := verifier.Verify(token)
		if err != nil {
			logger.WithField("remote", r.RemoteAddr).Warn("handshake with invalid token")
			c.Close(websocket.StatusPolicyViolation, closeReasonInvalidToken)
			return
		}

		client, err := registry.Attach(c, sess.UserID)
		if err != nil {
			c.Close(websocket.StatusPolicyViolation, closeReasonConnectionLimit)
			return
		}
		defer registry.Detach(client)

		log := logger.WithFields(logrus.Fields{
			"user": sess.UserID, "conn": client.ID, "remote": r.RemoteAddr,
		})
		log.Info("client connected")

		if frame, err := protocol.Encode(protocol.KindConnected, protocol.ConnectedPayload{
			UserID:       sess.UserID,
			ConnectionID: client.ID.String(),
		}); err == nil {
			registry.Send(client, frame)
		}

		readLoop(r.Context(), c, client, registry, engine, log)
		log.Info("client disconnected")
	}
}

// readLoop consumes inbound frames until the connection closes. Protocol
// errors are echoed as error frames and never close the connection.
func readLoop(ctx context.Context, c *websocket.Conn, client *ws.Client, registry *ws.Registry, engine *quiz.Engine, log *logrus.Entry) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			if strings.Contains(err.Error(), "context canceled") {
				return
			}
			log.WithFields(logrus.Fields{"error": err, "status": status}).Warn("read error")
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		if !client.Allow(time.Now()) {
			registry.Send(client, protocol.EncodeError(protocol.ErrRateLimited))
			continue
		}

		in, err := protocol.Decode(data)
		if err != nil {
			registry.Send(client, protocol.EncodeError(protocol.AsErr(err)))
			continue
		}

		if err := dispatch(ctx, in, client, registry, engine); err != nil {
			registry.Send(client, protocol.EncodeError(protocol.AsErr(err)))
		}
	}
}

// dispatch routes one decoded message to the engine.
func dispatch(ctx context.Context, in *protocol.Inbound, client *ws.Client, registry *ws.Registry, engine *quiz.Engine) error {
	switch in.Type {
	case protocol.KindJoin:
		snapshot, err := engine.Join(ctx, client.UserID, in.Join.RoomID, in.Join.Password)
		if err != nil {
			return err
		}
		registry.JoinRoom(client, in.Join.RoomID)
		frame, err := protocol.Encode(protocol.KindJoinedRoom, snapshot)
		if err != nil {
			return protocol.ErrInternal
		}
		registry.Send(client, frame)
		return nil

	case protocol.KindStartQuiz:
		return engine.StartQuiz(ctx, client.UserID, in.StartQuiz.RoomID)

	case protocol.KindSubmitAnswer:
		return engine.SubmitAnswer(ctx, client.UserID, in.Submit.RoomID, in.Submit.QuestionIndex, in.Submit.ChoiceIdx)

	case protocol.KindLeaveRoom:
		registry.LeaveRoom(client)
		engine.Leave(ctx, client.UserID, in.Leave.RoomID)
		return nil

	default:
		return protocol.ErrBadFrame
	}
}
