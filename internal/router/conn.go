package router

import (
	"sync"

	"github.com/wavesync/syncd/internal/session"
)

// Conn is the router's view of one transport connection: its identity, the
// session.Sender the transport adapter implements for outbound frames, and
// the session/client binding established by join_session. Owned by the
// transport adapter (internal/ws) and passed into every Router call for
// that connection.
type Conn struct {
	ID     string
	Sender session.Sender

	mu        sync.Mutex
	sessionID string
	clientID  string
}

// NewConn wraps a transport connection for the router.
func NewConn(id string, sender session.Sender) *Conn {
	return &Conn{ID: id, Sender: sender}
}

func (c *Conn) bind(sessionID, clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.clientID = clientID
}

// Binding returns the session/client this connection joined, if any.
func (c *Conn) Binding() (sessionID, clientID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.clientID, c.sessionID != ""
}
