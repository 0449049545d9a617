package connection

import (
	"sync"
	"time"
)

// Client is one live socket for one user. It is owned by the registry entry
// of its user; the gateway's write pump drains Send.
type Client struct {
	UserID    string
	SocketID  string
	Connected time.Time

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func NewClient(userID, socketID string, sendBuffer int) *Client {
	return &Client{
		UserID:    userID,
		SocketID:  socketID,
		Connected: time.Now().UTC(),
		send:      make(chan []byte, sendBuffer),
	}
}

// Send returns the outbound channel for the write pump.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// TrySend enqueues a frame without blocking. A full buffer means the peer
// is too slow; the frame is dropped so one stuck socket cannot stall a
// room broadcast.
func (c *Client) TrySend(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close makes further TrySend calls no-ops and releases the write pump.
// Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
