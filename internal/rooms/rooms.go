package rooms

import (
	"sync"

	"github.com/AlfazAli25/NexusChat/internal/connection"
)

// Manager maps chat rooms to subscribed sockets and back. Join is
// idempotent; the gateway auto-joins every chat the user participates in
// at handshake, so explicit join-chat events are mostly redundant.
type Manager struct {
	mu      sync.RWMutex
	byChat  map[string]map[*connection.Client]struct{}
	byConn  map[*connection.Client]map[string]struct{}
}

func New() *Manager {
	return &Manager{
		byChat: make(map[string]map[*connection.Client]struct{}),
		byConn: make(map[*connection.Client]map[string]struct{}),
	}
}

func (m *Manager) Join(c *connection.Client, chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byChat[chatID]; !ok {
		m.byChat[chatID] = make(map[*connection.Client]struct{})
	}
	m.byChat[chatID][c] = struct{}{}
	if _, ok := m.byConn[c]; !ok {
		m.byConn[c] = make(map[string]struct{})
	}
	m.byConn[c][chatID] = struct{}{}
}

func (m *Manager) Leave(c *connection.Client, chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(c, chatID)
}

// LeaveAll drops every subscription of the socket; called on disconnect.
func (m *Manager) LeaveAll(c *connection.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chatID := range m.byConn[c] {
		m.leaveLocked(c, chatID)
	}
	delete(m.byConn, c)
}

func (m *Manager) leaveLocked(c *connection.Client, chatID string) {
	if set, ok := m.byChat[chatID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(m.byChat, chatID)
		}
	}
	if set, ok := m.byConn[c]; ok {
		delete(set, chatID)
	}
}

// Members returns a snapshot of the sockets subscribed to the chat.
// Broadcasts iterate the copy, never the live map.
func (m *Manager) Members(chatID string) []*connection.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.byChat[chatID]
	out := make([]*connection.Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// IsJoined reports whether the socket is subscribed to the chat.
func (m *Manager) IsJoined(c *connection.Client, chatID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byConn[c][chatID]
	return ok
}
