package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"

	eventsub "github.com/dnsge/go-twitch-eventsub"
	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps the credential as a JSON string under one key.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (eventsub.Credential, error) {
	if s.key == "" {
		return eventsub.Credential{}, fmt.Errorf("credential key is not configured")
	}
	value, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return eventsub.Credential{}, ErrNotFound
	}
	if err != nil {
		return eventsub.Credential{}, fmt.Errorf("redis GET %s: %w", s.key, err)
	}

	var cred eventsub.Credential
	if err := json.Unmarshal([]byte(value), &cred); err != nil {
		return eventsub.Credential{}, fmt.Errorf("unmarshal credential: %w", err)
	}
	return cred, nil
}

func (s *RedisStore) Save(ctx context.Context, cred eventsub.Credential) error {
	if s.key == "" {
		return fmt.Errorf("credential key is not configured")
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := s.client.Set(ctx, s.key, string(data), 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
