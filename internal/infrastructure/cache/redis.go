// Package cache provides a Redis-backed cache used to memoize evaluation
// results keyed by dataset fingerprint and catalog version.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/config"
)

// ErrCacheKeyNotFound indicates a cache miss.
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return fmt.Sprintf("cache key not found: %s", e.Key)
}

// Cache is the minimal key-value surface the evaluation service needs.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type redisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache creates a Redis cache instance with the given configuration.
func NewRedisCache(cfg *config.RedisConfig, logger *zap.Logger) (Cache, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("redis cache initialized",
		zap.String("addr", cfg.URL),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize))

	return &redisCache{client: client, logger: logger}, nil
}

func (r *redisCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheKeyNotFound{Key: key}
		}
		r.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		r.logger.Error("json unmarshal failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("json unmarshal failed: %w", err)
	}
	return nil
}

func (r *redisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Error("json marshal failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("json marshal failed: %w", err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		r.logger.Error("redis set failed",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("redis delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *redisCache) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("redis close failed", zap.Error(err))
		return fmt.Errorf("redis close failed: %w", err)
	}
	return nil
}

// EvaluationKey builds the cache key for an evaluation result. The dataset
// fingerprint already covers content; the catalog version invalidates
// entries when regulations change.
func EvaluationKey(fingerprint, catalogVersion string) string {
	return fmt.Sprintf("cbhc:eval:%s:%s", catalogVersion, fingerprint)
}
