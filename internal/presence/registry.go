// Package presence tracks which users currently hold live connections.
// State is process-local and lost on restart; clients re-authenticate on
// reconnect. For horizontally scaled deployments the Store mirrors
// liveness into Redis.
package presence

import (
	"sort"
	"sync"
)

// Registry binds connection ids to user identities. One binding per
// connection: re-authentication overwrites the previous user.
type Registry struct {
	mu    sync.Mutex
	conns map[string]string              // connID -> userID
	users map[string]map[string]struct{} // userID -> connIDs
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]string),
		users: make(map[string]map[string]struct{}),
	}
}

// Bind associates connID with userID and reports whether this made the
// user online (no prior connections).
func (r *Registry) Bind(connID, userID string) (cameOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.conns[connID]; ok {
		if prev == userID {
			return false
		}
		r.dropLocked(connID, prev)
	}
	r.conns[connID] = userID
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	set[connID] = struct{}{}
	return len(set) == 1
}

// Unbind removes the connection's binding. wentOffline is true when this
// was the user's last connection.
func (r *Registry) Unbind(connID string) (userID string, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	r.dropLocked(connID, userID)
	_, stillOnline := r.users[userID]
	return userID, !stillOnline
}

func (r *Registry) dropLocked(connID, userID string) {
	delete(r.conns, connID)
	if set, ok := r.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
}

func (r *Registry) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok
}

// Snapshot returns the ids of all currently online users, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close clears all state; part of process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = make(map[string]string)
	r.users = make(map[string]map[string]struct{})
}
