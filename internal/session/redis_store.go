package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings. Keys are namespaced under prefix.
func NewRedisStore(ctx context.Context, host, port, username, password, prefix string) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:     host + ":" + port,
		Username: username,
		Password: password,
		DB:       0,
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func (st *RedisStore) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := st.client.Set(ctx, st.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	log.Printf("💾 Saving record to Redis: %s (TTL: %v)", key, ttl)
	return nil
}

func (st *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := st.client.Get(ctx, st.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	log.Printf("🔍 Got record from Redis: %s", key)
	return data, true, nil
}

func (st *RedisStore) Delete(ctx context.Context, key string) error {
	if err := st.client.Del(ctx, st.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (st *RedisStore) Close() error {
	return st.client.Close()
}
