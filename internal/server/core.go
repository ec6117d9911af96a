package server

import (
	"sync"

	"github.com/orbitsync/orbitsync/internal/core/collab"
	"github.com/orbitsync/orbitsync/internal/core/events"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
)

const sendQueueSize = 64

// remote is one connected client, transport-agnostic. The send channel
// decouples event handling from the network write; slow clients drop frames
// instead of stalling the tick path.
type remote struct {
	mu        sync.Mutex
	sessionID string
	send      chan []byte
	closed    bool
}

func newRemote() *remote {
	return &remote{send: make(chan []byte, sendQueueSize)}
}

func (r *remote) session() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *remote) bind(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = sessionID
}

// push enqueues data without blocking. Returns false when the queue is full
// or closed; the frame is dropped.
func (r *remote) push(data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.send <- data:
		return true
	default:
		return false
	}
}

func (r *remote) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.send)
	}
}

// Core holds the session table shared by all gateway transports and routes
// decoded events into the collaboration service. It is the broadcaster's
// delivery sink.
type Core struct {
	svc    *collab.Service
	logger log.Log

	mu      sync.RWMutex
	remotes map[string]*remote
}

func NewCore(svc *collab.Service, logger log.Log) *Core {
	return &Core{
		svc:     svc,
		logger:  logger.With(log.String("component", "gateway")),
		remotes: make(map[string]*remote),
	}
}

// Deliver encodes the event once and fans it out to every listed session.
// Sessions that disappeared or have a full queue are skipped.
func (c *Core) Deliver(sessionIDs []string, ev events.Outbound) {
	data, err := events.EncodeOutbound(ev)
	if err != nil {
		c.logger.Error("encode outbound failed",
			log.String("kind", string(ev.OutboundKind())),
			log.Error(err))
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range sessionIDs {
		r, ok := c.remotes[id]
		if !ok {
			continue
		}
		if !r.push(data) {
			c.logger.Debug("frame dropped for slow session", log.String("session_id", id))
		}
	}
}

// HandleEvent routes one decoded inbound event from a connection. The
// returned flag tells the transport to close the connection.
func (c *Core) HandleEvent(r *remote, ev events.Inbound) (closeConn bool) {
	switch ev := ev.(type) {
	case events.Join:
		c.handleJoin(r, ev)
	case events.Leave:
		if !c.authorized(r, ev.SessionID) {
			return false
		}
		reply, fanouts, err := c.svc.Leave(ev.SessionID)
		c.reply(r, reply, fanouts, err)
	case events.AddParticle:
		if !c.authorized(r, ev.SessionID) {
			return false
		}
		reply, fanouts, err := c.svc.AddParticle(ev.SessionID, ev)
		c.reply(r, reply, fanouts, err)
	case events.RemoveParticle:
		if !c.authorized(r, ev.SessionID) {
			return false
		}
		reply, fanouts, err := c.svc.RemoveParticle(ev.SessionID, ev)
		c.reply(r, reply, fanouts, err)
	case events.Clear:
		if !c.authorized(r, ev.SessionID) {
			return false
		}
		reply, fanouts, err := c.svc.Clear(ev.SessionID)
		c.reply(r, reply, fanouts, err)
	case events.ParameterUpdate:
		if !c.authorized(r, ev.SessionID) {
			return false
		}
		reply, fanouts, err := c.svc.UpdateParameters(ev.SessionID, ev)
		c.reply(r, reply, fanouts, err)
	case events.Disconnect:
		if !c.authorized(r, ev.SessionID) {
			return false
		}
		c.DropConnection(r)
		return true
	}
	return false
}

// HandleRaw decodes and routes one wire frame.
func (c *Core) HandleRaw(r *remote, data []byte) (closeConn bool) {
	ev, err := events.DecodeInbound(data)
	if err != nil {
		c.sendEvent(r, events.NewError(err))
		return false
	}
	return c.HandleEvent(r, ev)
}

// DropConnection tears down a remote's session state. Called on disconnect
// events and on transport-level connection loss, so unclean drops still
// cascade to room leave.
func (c *Core) DropConnection(r *remote) {
	sessionID := r.session()
	if sessionID != "" {
		c.mu.Lock()
		delete(c.remotes, sessionID)
		c.mu.Unlock()

		fanouts, err := c.svc.Disconnect(sessionID)
		if err != nil {
			c.logger.Debug("disconnect for unknown session",
				log.String("session_id", sessionID))
		}
		c.fanout(fanouts)
	}
	r.close()
}

// SessionCount returns the number of connected sessions.
func (c *Core) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.remotes)
}

func (c *Core) handleJoin(r *remote, ev events.Join) {
	sessionID := r.session()
	if sessionID == "" {
		var err error
		sessionID, err = c.svc.Connect(ev.UserID)
		if err != nil {
			c.sendEvent(r, events.NewError(err))
			return
		}
		r.bind(sessionID)
		c.mu.Lock()
		c.remotes[sessionID] = r
		c.mu.Unlock()
	}

	reply, fanouts, err := c.svc.Join(sessionID, ev)
	c.reply(r, reply, fanouts, err)
}

// authorized checks that the claimed session ID belongs to this connection.
func (c *Core) authorized(r *remote, sessionID string) bool {
	if sessionID != "" && sessionID == r.session() {
		return true
	}
	c.sendEvent(r, events.Error{
		Code:    events.CodeForbidden,
		Message: "session_id does not match this connection",
	})
	return false
}

// reply sends the direct response (or the error) to the caller and fans the
// room-wide notifications out to everyone else. Fanouts accumulated before
// a failure (e.g. the implicit leave of a room move) are still delivered.
func (c *Core) reply(r *remote, reply events.Outbound, fanouts []collab.Fanout, err error) {
	c.fanout(fanouts)
	if err != nil {
		c.sendEvent(r, events.NewError(err))
		return
	}
	c.sendEvent(r, reply)
}

func (c *Core) fanout(fanouts []collab.Fanout) {
	for _, f := range fanouts {
		c.Deliver(f.Sessions, f.Event)
	}
}

func (c *Core) sendEvent(r *remote, ev events.Outbound) {
	data, err := events.EncodeOutbound(ev)
	if err != nil {
		c.logger.Error("encode outbound failed",
			log.String("kind", string(ev.OutboundKind())),
			log.Error(err))
		return
	}
	r.push(data)
}
