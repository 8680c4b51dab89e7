package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store mirrors presence into Redis so other instances (and the REST
// surface behind a load balancer) can answer online checks. Keys expire;
// live connections refresh them on the ping cadence.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *Store) SetOnline(ctx context.Context, userID string) error {
	payload, _ := json.Marshal(map[string]any{
		"status":    "online",
		"last_seen": time.Now().Unix(),
	})
	return s.client.Set(ctx, s.key(userID), payload, s.ttl).Err()
}

// Refresh extends the online key's TTL.
func (s *Store) Refresh(ctx context.Context, userID string) error {
	return s.client.Expire(ctx, s.key(userID), s.ttl).Err()
}

func (s *Store) SetOffline(ctx context.Context, userID string) error {
	payload, _ := json.Marshal(map[string]any{
		"status":    "offline",
		"last_seen": time.Now().Unix(),
	})
	return s.client.Set(ctx, s.key(userID), payload, 0).Err()
}

func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return false, err
	}
	return out.Status == "online", nil
}
