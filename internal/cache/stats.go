// internal/cache/stats.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/config"
	"github.com/sua-org/nursecall-bus/internal/store"
)

const statsKey = "nursecall:stats"

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

type StatsLoader func(ctx context.Context) (store.Stats, error)

// StatsCache guarda o resultado de /api/stats por alguns segundos. O
// ingest invalida a chave a cada evento gravado. Com client nil vira
// passagem direta para o loader.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewStatsCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StatsCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &StatsCache{client: client, ttl: ttl, logger: logger.Named("cache")}
}

func (c *StatsCache) Get(ctx context.Context, load StatsLoader) (store.Stats, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}

	raw, err := c.client.Get(ctx, statsKey).Bytes()
	switch {
	case err == nil:
		var st store.Stats
		if jerr := json.Unmarshal(raw, &st); jerr == nil {
			return st, nil
		}
	case !errors.Is(err, redis.Nil):
		// redis fora do ar não derruba a API
		c.logger.Warn("stats cache read failed", zap.Error(err))
	}

	st, err := load(ctx)
	if err != nil {
		return store.Stats{}, err
	}
	if data, jerr := json.Marshal(st); jerr == nil {
		if serr := c.client.Set(ctx, statsKey, data, c.ttl).Err(); serr != nil {
			c.logger.Warn("stats cache write failed", zap.Error(serr))
		}
	}
	return st, nil
}

func (c *StatsCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, statsKey).Err(); err != nil {
		return fmt.Errorf("invalidate stats: %w", err)
	}
	return nil
}

func (c *StatsCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
