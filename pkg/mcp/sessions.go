package mcp

import "sync"

// SessionRegistry maps view IDs to MCP session IDs.
// Populated automatically when a session renders into a view.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // viewID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a view ID with a session ID.
// The last session to render into a view owns it.
func (r *SessionRegistry) Register(viewID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[viewID] = sessionID
}

// SessionFor returns the session ID bound to the given view.
func (r *SessionRegistry) SessionFor(viewID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[viewID]
	return sid, ok
}

// Remove deletes all view mappings for the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for vid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, vid)
		}
	}
}

// Forget drops the mapping of a closed view.
func (r *SessionRegistry) Forget(viewID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, viewID)
}
