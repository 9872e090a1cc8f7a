package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis with a TTL matching session expiry, so
// revocation survives process restarts and is shared across replicas.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore constructs a RedisStore over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, sessionKey(rec.ID), payload, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	payload, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}
