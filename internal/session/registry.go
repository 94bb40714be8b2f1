package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry is the in-memory index from interview id to the set of live
// connections. Pure index: no business logic, no ownership of the sockets.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[*Conn]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[*Conn]struct{}),
	}
}

// Join adds conn to the session for id, creating the session lazily.
func (r *Registry) Join(id string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		r.sessions[id] = make(map[*Conn]struct{})
	}
	r.sessions[id][conn] = struct{}{}
	slog.Info("participant joined session",
		"interview_id", id,
		"participant_id", conn.Identity.ID,
		"role", conn.Identity.Role)
}

// Leave removes conn from the session for id. The session entry is dropped
// when its set becomes empty. Returns true if the conn was registered.
func (r *Registry) Leave(id string, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[id]
	if !ok {
		return false
	}
	if _, registered := conns[conn]; !registered {
		return false
	}

	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.sessions, id)
	}
	slog.Info("participant left session",
		"interview_id", id,
		"participant_id", conn.Identity.ID)
	return true
}

// Broadcast delivers event to every connection registered for id except
// exclude. Silently no-ops when no session exists. Delivery is best effort;
// dead peers are reaped by the gateway's liveness checks, not here.
func (r *Registry) Broadcast(ctx context.Context, id string, event Event, exclude *Conn) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.sessions[id]))
	for conn := range r.sessions[id] {
		if conn != exclude {
			conns = append(conns, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(ctx, event); err != nil {
			slog.Debug("broadcast delivery failed",
				"interview_id", id,
				"participant_id", conn.Identity.ID,
				"event", event.Type,
				"error", err)
		}
	}
}

// Snapshot returns the current participant list for id.
func (r *Registry) Snapshot(id string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := make([]Participant, 0, len(r.sessions[id]))
	for conn := range r.sessions[id] {
		participants = append(participants, conn.Participant())
	}
	return participants
}

// Size returns the number of connections registered for id.
func (r *Registry) Size(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[id])
}

// CloseAll terminates every registered connection with the given status and
// clears the index. Used on shutdown. Closes run concurrently so one dead
// peer's close-echo timeout cannot serialize shutdown behind it.
func (r *Registry) CloseAll(status websocket.StatusCode, reason string) {
	r.mu.Lock()
	var conns []*Conn
	for id, set := range r.sessions {
		for conn := range set {
			conns = append(conns, conn)
		}
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *Conn) {
			defer wg.Done()
			conn.close(status, reason)
		}(conn)
	}
	wg.Wait()
}
