package kv

import (
	"context"
	"errors"

	redisclient "github.com/davidpalacios/shopline-backend/pkg/redis"
	redislib "github.com/redis/go-redis/v9"
)

// RedisStore adapts the shared redis client to the Store contract used by the
// cart and session managers. Values never expire; the managers own cleanup.
type RedisStore struct {
	client *redisclient.Client
}

// NewRedisStore wraps an established redis client.
func NewRedisStore(client *redisclient.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.client.StateKey(key))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.client.StateKey(key), value, 0)
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	namespaced := make([]string, 0, len(keys))
	for _, key := range keys {
		namespaced = append(namespaced, s.client.StateKey(key))
	}
	return s.client.Del(ctx, namespaced...)
}
