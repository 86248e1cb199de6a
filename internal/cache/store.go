// Package cache provides byte stores backed by Redis or process memory and the
// snapshot cache built on top of them.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Driver() string
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Driver() string {
	return DriverRedis
}

// MemoryStore is a bounded LRU with a single TTL for every entry, so the ttl
// argument to Set is ignored in favour of the one given at construction.
type MemoryStore struct {
	entries *lru.LRU[string, []byte]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	return &MemoryStore{entries: lru.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := s.entries.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return b, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.entries.Add(key, value)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.entries.Remove(k)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Driver() string {
	return DriverMemory
}
