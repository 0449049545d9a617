package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AlfazAli25/NexusChat/internal/models"
)

// RedisMirror keeps the last-known presence of every user in Redis so REST
// collaborators can answer "last seen" queries across restarts.
//
// Key shape: <prefix>:presence:<userID> -> {"status":...,"last_seen":...}
type RedisMirror struct {
	client *redis.Client
	prefix string
}

func NewRedisMirror(client *redis.Client, prefix string) *RedisMirror {
	return &RedisMirror{client: client, prefix: prefix}
}

func (m *RedisMirror) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", m.prefix, userID)
}

func (m *RedisMirror) SetPresence(ctx context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) error {
	b, _ := json.Marshal(map[string]any{
		"status":    status,
		"last_seen": lastSeen.Unix(),
	})
	return m.client.Set(ctx, m.key(userID), b, 0).Err()
}

// GetPresence returns the mirrored presence document, or nil when absent.
func (m *RedisMirror) GetPresence(ctx context.Context, userID string) (map[string]any, error) {
	b, err := m.client.Get(ctx, m.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
