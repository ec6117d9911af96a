package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbitsync/orbitsync/internal/config"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

// WebSocketGateway is the primary transport: one websocket connection per
// session, JSON event envelopes both ways.
type WebSocketGateway struct {
	core   *Core
	cfg    config.Server
	logger log.Log

	httpSrv *http.Server
	running int32 // atomic bool
}

func NewWebSocketGateway(core *Core, cfg config.Server, logger log.Log) *WebSocketGateway {
	return &WebSocketGateway{
		core:   core,
		cfg:    cfg,
		logger: logger.With(log.String("transport", "websocket")),
	}
}

// Start begins serving websocket upgrades on the configured address.
func (g *WebSocketGateway) Start() error {
	if !atomic.CompareAndSwapInt32(&g.running, 0, 1) {
		return ErrAlreadyRunning
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWebSocket)
	g.httpSrv = &http.Server{Addr: g.cfg.ListenAddr, Handler: mux}

	go func() {
		if err := g.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("listener failed", log.Error(err))
		}
	}()

	g.logger.Info("websocket gateway listening", log.String("addr", g.cfg.ListenAddr))
	return nil
}

// Stop shuts the listener down and closes all live connections via their
// read pumps.
func (g *WebSocketGateway) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&g.running, 1, 0) {
		return ErrNotRunning
	}
	err := g.httpSrv.Shutdown(ctx)
	g.logger.Info("websocket gateway stopped")
	return err
}

func (g *WebSocketGateway) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		g.logger.Debug("upgrade failed", log.Error(err))
		return
	}
	conn.SetReadLimit(g.cfg.MaxMessageSize)

	r := newRemote()
	go g.writePump(conn, r)
	g.readPump(conn, r)
}

// readPump decodes frames until the connection dies, then cascades the
// disconnect so unclean drops still free the session and its room seat.
func (g *WebSocketGateway) readPump(conn *websocket.Conn, r *remote) {
	defer func() {
		g.core.DropConnection(r)
		_ = conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if g.core.HandleRaw(r, data) {
			return
		}
	}
}

// writePump drains the remote's send queue onto the wire. Delivery happens
// here, never under a room or registry lock.
func (g *WebSocketGateway) writePump(conn *websocket.Conn, r *remote) {
	for data := range r.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			_ = conn.Close()
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
}
