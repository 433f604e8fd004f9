package mcp

import "sync"

// SessionRegistry maps client IDs to MCP session IDs.
// Populated when a client calls flowplan.build with client_id.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // clientID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a client ID with a session ID, replacing any
// earlier session for the same client.
func (r *SessionRegistry) Register(clientID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[clientID] = sessionID
}

// SessionFor returns the session ID for the given client, if connected.
func (r *SessionRegistry) SessionFor(clientID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[clientID]
	return sid, ok
}

// Len reports how many clients are registered.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove deletes all client mappings for the given session ID.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, cid)
		}
	}
}
