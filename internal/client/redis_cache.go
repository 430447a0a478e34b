package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

// RedisCache shares generation responses across processes. Failures degrade
// to cache misses; a broken cache must never fail a generation call.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

type redisCachedResponse struct {
	Content    string        `json:"content"`
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	TokensUsed int           `json:"tokens_used"`
	Cost       float64       `json:"cost"`
	Latency    time.Duration `json:"latency"`
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		prefix: "novelforge:responses:",
		logger: slog.Default().With("component", "redis_cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (provider.Response, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache lookup failed", "error", err)
		}
		return provider.Response{}, false
	}

	var cached redisCachedResponse
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		c.client.Del(ctx, c.prefix+key)
		return provider.Response{}, false
	}

	return provider.Response{
		Content:    cached.Content,
		Provider:   cached.Provider,
		Model:      cached.Model,
		TokensUsed: cached.TokensUsed,
		Cost:       cached.Cost,
		Latency:    cached.Latency,
	}, true
}

func (c *RedisCache) Set(ctx context.Context, key string, resp provider.Response) {
	data, err := json.Marshal(redisCachedResponse{
		Content:    resp.Content,
		Provider:   resp.Provider,
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
		Cost:       resp.Cost,
		Latency:    resp.Latency,
	})
	if err != nil {
		c.logger.Warn("cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
}
