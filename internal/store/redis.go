package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces bunkmate keys in a shared redis.
const DefaultPrefix = "bunkmate:"

// RedisStore keeps values as plain redis strings under Prefix+key.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &RedisStore{Client: client, Prefix: DefaultPrefix}
}

// Healthy verifies redis connectivity.
func (r *RedisStore) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *RedisStore) key(k string) string { return r.Prefix + k }

// Get fetches all keys in one MGET.
func (r *RedisStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	vals, err := r.Client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		switch s := v.(type) {
		case string:
			out[keys[i]] = []byte(s)
		case []byte:
			out[keys[i]] = s
		}
	}
	return out, nil
}

// Set writes all values in one MSET.
func (r *RedisStore) Set(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	pairs := make([]any, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, r.key(k), v)
	}
	if err := r.Client.MSet(ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("redis mset: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *RedisStore) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
