package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/hirelens/hirelens/internal/domain"
)

// Conn is one live participant socket. It is owned by the gateway for its
// whole life and indexed (not owned) by the registry. A Conn belongs to
// exactly one interview session.
type Conn struct {
	ID          string
	Identity    domain.Identity
	InterviewID string
	CreatedAt   time.Time

	sock *websocket.Conn

	// writeMu serializes writes so broadcast delivery to this peer preserves
	// per-session accept order.
	writeMu sync.Mutex
}

func newConn(id string, identity domain.Identity, interviewID string, sock *websocket.Conn) *Conn {
	return &Conn{
		ID:          id,
		Identity:    identity,
		InterviewID: interviewID,
		CreatedAt:   time.Now(),
		sock:        sock,
	}
}

// Send marshals and writes one event to the peer. Best effort: callers log
// and move on when the peer is gone.
func (c *Conn) Send(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.sock.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Participant returns the presence view of this connection.
func (c *Conn) Participant() Participant {
	return Participant{
		ID:   c.Identity.ID,
		Name: c.Identity.DisplayName,
		Role: c.Identity.Role,
	}
}

// close terminates the socket with the given status, waiting for the peer's
// close echo. Safe to call more than once; the library ignores repeated
// closes.
func (c *Conn) close(status websocket.StatusCode, reason string) {
	_ = c.sock.Close(status, reason)
}

// closeNow tears the socket down without a close handshake. Used when the
// peer is already considered dead; a handshake close would block on its
// echo timeout.
func (c *Conn) closeNow() {
	_ = c.sock.CloseNow()
}
