// Package client provides a high-level websocket client SDK for OrbitSync.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbitsync/orbitsync/internal/core/events"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
	"github.com/orbitsync/orbitsync/internal/core/physics"
)

// Handler receives one decoded server event.
type Handler func(kind events.Kind, payload json.RawMessage) error

// Config holds configuration for the client.
type Config struct {
	// ServerURL is the websocket endpoint, e.g. "ws://localhost:8080/ws".
	ServerURL      string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	LogLevel       log.Level
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		ServerURL:      "ws://localhost:8080/ws",
		ConnectTimeout: 30 * time.Second,
		WriteTimeout:   10 * time.Second,
		LogLevel:       log.LevelInfo,
	}
}

// Client is one OrbitSync connection. A session ID is assigned by the server
// on the first join and reused for every subsequent request.
type Client struct {
	config Config
	logger log.Log

	conn    *websocket.Conn
	writeMu sync.Mutex

	sessionMu sync.RWMutex
	sessionID string

	handlerMu sync.RWMutex
	handlers  map[events.Kind][]Handler

	connected int32 // atomic bool
	closed    int32 // atomic bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a disconnected client.
func New(config Config) *Client {
	logger := log.New(config.LogLevel)
	return &Client{
		config:   config,
		logger:   logger.With(log.String("component", "client")),
		handlers: make(map[events.Kind][]Handler),
		done:     make(chan struct{}),
	}
}

// Connect dials the server and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}
	if !atomic.CompareAndSwapInt32(&c.connected, 0, 1) {
		return ErrAlreadyConnected
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.config.ServerURL, nil)
	if err != nil {
		atomic.StoreInt32(&c.connected, 0)
		return err
	}
	c.conn = conn

	c.wg.Add(1)
	go c.readLoop()

	c.logger.Info("connected", log.String("url", c.config.ServerURL))
	return nil
}

// Close tears the connection down and waits for the read loop to exit.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	atomic.StoreInt32(&c.connected, 0)
	close(c.done)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.wg.Wait()
	c.logger.Info("client closed")
	return nil
}

// SessionID returns the server-assigned session, empty before the first
// successful join.
func (c *Client) SessionID() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

// IsConnected reports whether the connection is live.
func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// On registers a handler for one server event kind. Handlers run on the read
// loop; slow handlers delay subsequent events.
func (c *Client) On(kind events.Kind, handler Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], handler)
}

// Join requests membership in the room registered under roomKey. The session
// ID arrives asynchronously in the room_joined reply.
func (c *Client) Join(userID, roomKey string, opts ...JoinOption) error {
	ev := events.Join{UserID: userID, RoomKey: roomKey}
	for _, opt := range opts {
		opt(&ev)
	}
	return c.send(events.KindJoin, ev)
}

// JoinOption tweaks a join request.
type JoinOption func(*events.Join)

func WithMode(mode string) JoinOption {
	return func(ev *events.Join) { ev.Mode = mode }
}

func WithMaxParticipants(n int) JoinOption {
	return func(ev *events.Join) { ev.MaxParticipants = n }
}

// Leave exits the current room while keeping the session alive.
func (c *Client) Leave() error {
	sid, err := c.requireSession()
	if err != nil {
		return err
	}
	return c.send(events.KindLeave, events.Leave{SessionID: sid})
}

// AddParticle inserts one particle into the current room's simulation.
func (c *Client) AddParticle(position, velocity physics.Vec3, mass, radius, charge float64) error {
	sid, err := c.requireSession()
	if err != nil {
		return err
	}
	return c.send(events.KindAddParticle, events.AddParticle{
		SessionID: sid,
		Position:  position,
		Velocity:  velocity,
		Mass:      mass,
		Radius:    radius,
		Charge:    charge,
	})
}

// RemoveParticle drops one particle by ID.
func (c *Client) RemoveParticle(objectID uint64) error {
	sid, err := c.requireSession()
	if err != nil {
		return err
	}
	return c.send(events.KindRemoveParticle, events.RemoveParticle{SessionID: sid, ObjectID: objectID})
}

// Clear removes every particle from the current room.
func (c *Client) Clear() error {
	sid, err := c.requireSession()
	if err != nil {
		return err
	}
	return c.send(events.KindClear, events.Clear{SessionID: sid})
}

// UpdateParameters sends a room parameter payload.
func (c *Client) UpdateParameters(params map[string]any) error {
	sid, err := c.requireSession()
	if err != nil {
		return err
	}
	return c.send(events.KindParameterUpdate, events.ParameterUpdate{SessionID: sid, Payload: params})
}

// Disconnect asks the server to tear the session down, then closes locally.
func (c *Client) Disconnect() error {
	sid, err := c.requireSession()
	if err != nil {
		return err
	}
	if err = c.send(events.KindDisconnect, events.Disconnect{SessionID: sid}); err != nil {
		return err
	}
	return c.Close()
}

func (c *Client) requireSession() (string, error) {
	if atomic.LoadInt32(&c.connected) == 0 {
		return "", ErrNotConnected
	}
	sid := c.SessionID()
	if sid == "" {
		return "", ErrNoSession
	}
	return sid, nil
}

func (c *Client) send(kind events.Kind, payload any) error {
	if atomic.LoadInt32(&c.connected) == 0 {
		return ErrNotConnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(events.Envelope{Type: kind, Payload: raw})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 0 {
				c.logger.Warn("connection lost", log.Error(err))
			}
			atomic.StoreInt32(&c.connected, 0)
			return
		}

		var env events.Envelope
		if err = json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("unreadable server frame", log.Error(err))
			continue
		}

		if env.Type == events.KindRoomJoined {
			c.captureSession(env.Payload)
		}
		c.dispatch(env.Type, env.Payload)
	}
}

func (c *Client) captureSession(payload json.RawMessage) {
	var joined events.RoomJoined
	if err := json.Unmarshal(payload, &joined); err != nil || joined.SessionID == "" {
		return
	}
	c.sessionMu.Lock()
	c.sessionID = joined.SessionID
	c.sessionMu.Unlock()
}

func (c *Client) dispatch(kind events.Kind, payload json.RawMessage) {
	c.handlerMu.RLock()
	handlers := c.handlers[kind]
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		if err := h(kind, payload); err != nil {
			c.logger.Error("handler error",
				log.String("kind", string(kind)),
				log.Error(err))
		}
	}
}
