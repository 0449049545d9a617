package registry

import (
	"sync"
	"time"

	"github.com/AlfazAli25/NexusChat/internal/connection"
)

// Registry is the process-local map from user id to that user's live
// sockets. It is lost on restart; clients re-register on reconnect, and
// registration is idempotent per handle.
//
// Every register/unregister mints a monotonically increasing epoch. The
// epoch orders connection events for presence: a transition carrying an
// older epoch lost the race and must not publish.
type Registry struct {
	mu     sync.RWMutex
	events uint64
	users  map[string]map[*connection.Client]struct{}
	epochs map[string]uint64
}

func New() *Registry {
	return &Registry{
		users:  make(map[string]map[*connection.Client]struct{}),
		epochs: make(map[string]uint64),
	}
}

// Register adds the handle to the user's set. first is true when this is
// the user's first live socket, i.e. an offline→online transition.
func (r *Registry) Register(userID string, c *connection.Client) (first bool, epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		set = make(map[*connection.Client]struct{})
		r.users[userID] = set
	}
	first = len(set) == 0
	set[c] = struct{}{}
	r.events++
	r.epochs[userID] = r.events
	return first, r.events
}

// Unregister removes the handle. last is true when the user's set became
// empty; lastSeen is fixed at the moment of removal. A no-op removal mints
// no epoch.
func (r *Registry) Unregister(userID string, c *connection.Client) (last bool, lastSeen time.Time, epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		return false, time.Time{}, r.epochs[userID]
	}
	if _, present := set[c]; !present {
		return false, time.Time{}, r.epochs[userID]
	}
	delete(set, c)
	r.events++
	r.epochs[userID] = r.events
	if len(set) == 0 {
		delete(r.users, userID)
		return true, time.Now().UTC(), r.events
	}
	return false, time.Time{}, r.events
}

// Connections returns a snapshot of the user's live sockets.
func (r *Registry) Connections(userID string) []*connection.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	out := make([]*connection.Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Epoch returns the epoch of the user's most recent connection event.
func (r *Registry) Epoch(userID string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epochs[userID]
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
