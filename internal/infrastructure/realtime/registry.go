package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
)

// SessionKey identifies the one live session allowed per user and
// conversation.
type SessionKey struct {
	UserID         string
	ConversationID string
}

// Registry tracks the active connection for each (user, conversation)
// pair with insert-or-evict-prior semantics. It is passed explicitly into
// the session manager so the supersession behavior is testable in
// isolation.
type Registry struct {
	mu     sync.Mutex
	active map[SessionKey]*Connection
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[SessionKey]*Connection)}
}

// Attach registers a connection as the live session for its pair. Any
// prior session for the same pair is evicted and closed with a normal
// closure: supersession is not an error, the newer connection simply wins.
// Returns true when a prior session was evicted.
func (r *Registry) Attach(conn *Connection) bool {
	key := SessionKey{UserID: conn.UserID, ConversationID: conn.ConversationID}

	r.mu.Lock()
	previous := r.active[key]
	r.active[key] = conn
	r.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.CloseWith(websocket.CloseNormalClosure, "session superseded")
		return true
	}
	return false
}

// Detach removes the connection if it is still the live one for its pair.
// A connection that has already been superseded leaves the newer entry
// untouched.
func (r *Registry) Detach(conn *Connection) {
	key := SessionKey{UserID: conn.UserID, ConversationID: conn.ConversationID}

	r.mu.Lock()
	if r.active[key] == conn {
		delete(r.active, key)
	}
	r.mu.Unlock()
}

// Active returns the live connection for the pair, or nil.
func (r *Registry) Active(key SessionKey) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[key]
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Close terminates all tracked connections and clears registry state.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.active))
	for _, conn := range r.active {
		conns = append(conns, conn)
	}
	r.active = make(map[SessionKey]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
