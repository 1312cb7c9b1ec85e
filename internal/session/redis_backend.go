package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a Redis-backed session backend.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: "session:",
	}
}

func (r *RedisBackend) key(sessionID string) string {
	return r.prefix + sessionID
}

// Put writes the record with a native expiry of ttl, so abandoned keys are
// reclaimed by Redis even if the sweeper never reaches them.
func (r *RedisBackend) Put(ctx context.Context, s Session, ttl time.Duration) error {
	data, err := encode(s, ttl)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(s.ID), data, ttl).Err()
}

// Refresh uses SET XX so a key deleted between read and write stays deleted.
func (r *RedisBackend) Refresh(ctx context.Context, s Session, ttl time.Duration) (bool, error) {
	data, err := encode(s, ttl)
	if err != nil {
		return false, err
	}
	err = r.client.SetArgs(ctx, r.key(s.ID), data, redis.SetArgs{Mode: "XX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func encode(s Session, ttl time.Duration) ([]byte, error) {
	if s.ID == "" || s.UserID == "" {
		return nil, errors.New("session: missing session id or user id")
	}
	if ttl <= 0 {
		return nil, errors.New("session: ttl must be positive")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("session: failed to marshal: %w", err)
	}
	return data, nil
}

func (r *RedisBackend) Get(ctx context.Context, sessionID string) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}

func (r *RedisBackend) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.key(sessionID)).Err()
}

// IDs walks the key space with SCAN instead of KEYS to avoid blocking Redis.
func (r *RedisBackend) IDs(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
