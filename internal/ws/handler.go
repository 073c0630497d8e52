// Package ws owns websocket transport: upgrading connections, running the
// per-connection read/write loops, and adapting each connection to the
// session.Sender interface the router and session package dispatch against.
//
// Grounded on the teacher's internal/ws/handler.go serveConn/handleInbound
// split: one goroutine reads and dispatches, a second drains a per-connection
// send channel and writes, and disconnect cleanup runs in a deferred func.
// Generalized from the teacher's single global channelState to the per-
// connection Conn binding the router package already tracks.
package ws

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/wavesync/syncd/internal/protocol"
	"github.com/wavesync/syncd/internal/router"
	"github.com/wavesync/syncd/internal/telemetry"
)

const (
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20 // 1 MiB, rejects oversized uploads-by-accident
	sendQueueLen = 64
)

// Handler owns websocket transport for the synchronized-playback event
// socket. One Handler serves every session; routing between sessions is the
// router's job.
type Handler struct {
	router   *router.Router
	metrics  *telemetry.Metrics
	upgrader websocket.Upgrader
}

// New builds a Handler bound to r. metrics may be nil to disable counters.
func New(r *router.Router, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		router:  r,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds the websocket route on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades one request and serves it until disconnect.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	remoteAddr := c.RealIP()
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("ws upgrade failed", "remote", remoteAddr, "err", err)
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	h.serveConn(conn, remoteAddr)
	return nil
}

// wsConn adapts a gorilla *websocket.Conn to session.Sender. Send enqueues
// onto a buffered channel and never blocks the caller holding the session
// lock; a full queue drops the connection rather than the session.
type wsConn struct {
	id   string
	out  chan protocol.Envelope
	once chan struct{}
}

func newWSConn(id string) *wsConn {
	return &wsConn{id: id, out: make(chan protocol.Envelope, sendQueueLen), once: make(chan struct{})}
}

func (c *wsConn) ConnID() string { return c.id }

func (c *wsConn) Send(ev protocol.Envelope) {
	select {
	case c.out <- ev:
	default:
		slog.Warn("ws send queue full, dropping connection", "conn_id", c.id, "event", ev.Event)
		c.closeOnce()
	}
}

func (c *wsConn) closeOnce() {
	select {
	case <-c.once:
	default:
		close(c.once)
	}
}

func (h *Handler) serveConn(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	connID := fmt.Sprintf("%s-%d", remoteAddr, time.Now().UnixNano())
	sender := newWSConn(connID)
	rc := router.NewConn(connID, sender)

	if h.metrics != nil {
		h.metrics.IncConnections()
		defer h.metrics.DecConnections()
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case ev, ok := <-sender.out:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					slog.Debug("ws write error", "conn_id", connID, "event", ev.Event, "err", err)
					return
				}
			case <-sender.once:
				_ = conn.Close()
				return
			}
		}
	}()

	defer func() {
		h.router.HandleDisconnect(rc)
		close(sender.out)
		<-writeDone
	}()

	slog.Info("ws connected", "conn_id", connID, "remote", remoteAddr)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws unexpected close", "conn_id", connID, "err", err)
			}
			return
		}

		reply := h.router.HandleMessage(rc, raw)
		if reply != nil {
			sender.Send(*reply)
		}
	}
}
