// Package ws tracks live client connections, enforces the per-user
// connection cap and per-connection rate limit, and provides the room
// fan-out primitive.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxConnectionsPerUser caps concurrent connections per user id.
const MaxConnectionsPerUser = 3

const (
	outboundBuffer = 32
	writeTimeout   = 3 * time.Second
)

// ErrConnectionLimit is returned by Attach when the user already holds
// MaxConnectionsPerUser live connections.
var ErrConnectionLimit = errors.New("connection limit reached")

// frameConn is the slice of *websocket.Conn the registry needs. Tests
// substitute a fake.
type frameConn interface {
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Client decorates one live connection with its identity, room
// attachment and rate limiter.
type Client struct {
	ID     uuid.UUID
	UserID int64

	conn    frameConn
	limiter *rateLimiter

	// out carries serialized frames to the write pump, preserving the
	// order of this client's outbound messages.
	out    chan []byte
	closed bool // guarded by the registry mutex
	roomID string
}

// Allow applies the per-connection rate limit to one inbound frame.
func (c *Client) Allow(now time.Time) bool {
	return c.limiter.Allow(now)
}

// Registry owns socket lifetime. All association state (user counts,
// room fan-out sets) lives behind one RWMutex; broadcasts take the read
// side and only perform non-blocking channel sends while holding it.
type Registry struct {
	log *logrus.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	byUser  map[int64]int
	rooms   map[string]map[uuid.UUID]*Client

	// onDetach is invoked after a connection attached to a room is
	// removed, so membership can be released. Set once during wiring.
	onDetach func(c *Client, roomID string)
}

func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		log:     log,
		clients: make(map[uuid.UUID]*Client),
		byUser:  make(map[int64]int),
		rooms:   make(map[string]map[uuid.UUID]*Client),
	}
}

// SetOnDetach registers the membership-leave hook. Must be called before
// the listener starts accepting.
func (r *Registry) SetOnDetach(fn func(c *Client, roomID string)) {
	r.onDetach = fn
}

// Attach registers a freshly authenticated connection and starts its
// write pump. Fails with ErrConnectionLimit when the user is at cap.
func (r *Registry) Attach(conn frameConn, userID int64) (*Client, error) {
	r.mu.Lock()
	if r.byUser[userID] >= MaxConnectionsPerUser {
		r.mu.Unlock()
		return nil, ErrConnectionLimit
	}
	c := &Client{
		ID:      uuid.New(),
		UserID:  userID,
		conn:    conn,
		limiter: newRateLimiter(RateLimitWindow, RateLimitMax),
		out:     make(chan []byte, outboundBuffer),
	}
	r.clients[c.ID] = c
	r.byUser[userID]++
	r.mu.Unlock()

	go r.writePump(c)
	return c, nil
}

// Detach removes the connection from the registry and its room fan-out
// set, then fires the membership hook. Idempotent.
func (r *Registry) Detach(c *Client) {
	r.mu.Lock()
	if c.closed {
		r.mu.Unlock()
		return
	}
	c.closed = true
	delete(r.clients, c.ID)
	if r.byUser[c.UserID] > 1 {
		r.byUser[c.UserID]--
	} else {
		delete(r.byUser, c.UserID)
	}
	roomID := c.roomID
	c.roomID = ""
	if roomID != "" {
		if set, ok := r.rooms[roomID]; ok {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	close(c.out)
	r.mu.Unlock()

	if roomID != "" && r.onDetach != nil {
		r.onDetach(c, roomID)
	}
}

// JoinRoom attaches the connection to a room's fan-out set. A connection
// belongs to at most one set at a time.
func (r *Registry) JoinRoom(c *Client, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.closed {
		return
	}
	if c.roomID != "" && c.roomID != roomID {
		if set, ok := r.rooms[c.roomID]; ok {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(r.rooms, c.roomID)
			}
		}
	}
	c.roomID = roomID
	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[uuid.UUID]*Client)
		r.rooms[roomID] = set
	}
	set[c.ID] = c
}

// LeaveRoom removes the connection from its fan-out set and reports
// which room it was attached to. Idempotent.
func (r *Registry) LeaveRoom(c *Client) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID := c.roomID
	if roomID == "" {
		return ""
	}
	c.roomID = ""
	if set, ok := r.rooms[roomID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(r.rooms, roomID)
		}
	}
	return roomID
}

// RoomOf reports the room the connection is currently attached to.
func (r *Registry) RoomOf(c *Client) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.roomID
}

// Broadcast delivers one pre-serialized frame to every connection joined
// to the room. Delivery is best-effort per client: a full outbound
// buffer drops the frame for that client; actual write failures are
// handled by the write pump, which detaches the connection.
func (r *Registry) Broadcast(roomID string, frame []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.rooms[roomID] {
		r.enqueue(c, frame)
	}
}

// Send delivers one frame to a single connection.
func (r *Registry) Send(c *Client, frame []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c.closed {
		return
	}
	r.enqueue(c, frame)
}

// enqueue pushes without blocking. Caller holds at least the read lock,
// which excludes Detach's close of the channel.
func (r *Registry) enqueue(c *Client, frame []byte) {
	if c.closed {
		return
	}
	select {
	case c.out <- frame:
	default:
		r.log.WithFields(logrus.Fields{
			"conn": c.ID, "user": c.UserID,
		}).Warn("outbound buffer full, dropping frame")
	}
}

// writePump drains the client's outbound channel onto the socket. A
// write failure detaches the connection; broadcasts to it afterwards
// become no-ops.
func (r *Registry) writePump(c *Client) {
	for frame := range c.out {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"conn": c.ID, "user": c.UserID, "error": err,
			}).Warn("write failed, detaching connection")
			r.Detach(c)
			return
		}
	}
}

// ConnectionCount reports live connections, for the health endpoint.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// UserConnections reports how many live connections a user holds.
func (r *Registry) UserConnections(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// SweepRateLimiters prunes stale rate-limit entries across all live
// connections. Invoked by the supervisor's periodic cleanup.
func (r *Registry) SweepRateLimiters(now time.Time, slack time.Duration) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		c.limiter.sweep(now, slack)
	}
}

// CloseAll sends a close frame to every live connection and detaches
// them. Used during graceful shutdown.
func (r *Registry) CloseAll(code websocket.StatusCode, reason string) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		_ = c.conn.Close(code, reason)
		r.Detach(c)
	}
}
