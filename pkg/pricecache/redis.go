package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

// Redis is a cache shared between instances. Entries are stored as JSON strings.
type Redis struct {
	cache *cache.Cache[string]
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	return &Redis{
		cache: cache.New[string](redisStore),
	}
}

// Connect opens a Redis client and verifies it with a ping
func Connect(ctx context.Context, address, password string, database int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       database,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", address, err)
	}

	return client, nil
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool) {
	raw, err := r.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		slog.Debug("Discarding unreadable price cache entry", "key", key, "error", err)
		return Entry{}, false
	}
	return entry, true
}

func (r *Redis) Set(ctx context.Context, key string, entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, string(data)); err != nil {
		slog.Debug("Failed to store price cache entry", "key", key, "error", err)
	}
}

func (r *Redis) Backend() string {
	return "redis"
}
