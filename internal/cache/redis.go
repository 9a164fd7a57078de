// Package cache stores normalized OCR output in Redis so identical images
// skip recognition.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/docmask/internal/ocr"
)

// OCRCache handles Redis-based caching of recognition results
type OCRCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewOCRCache creates a new Redis-based OCR cache
func NewOCRCache(config *Config, logger *zap.Logger) (*OCRCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	c := &OCRCache{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.ping(ctx); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("OCR cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return c, nil
}

func (c *OCRCache) ping(ctx context.Context) error {
	_, err := c.client.Ping(ctx).Result()
	return err
}

// Get returns the cached result for image, or nil on a miss
func (c *OCRCache) Get(ctx context.Context, image []byte, language string) (*ocr.Result, error) {
	key := generateKey(c.config.KeyPrefix, c.config.Variant, image, language)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		c.logger.Debug("Cache miss", zap.String("key", key))
		return nil, nil
	} else if err != nil {
		c.misses.Add(1)
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	var result ocr.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.misses.Add(1)
		c.logger.Error("Failed to unmarshal cached result", zap.Error(err))
		// Delete corrupted cache entry
		c.client.Del(ctx, key)
		return nil, nil
	}

	c.hits.Add(1)
	c.logger.Debug("Cache hit",
		zap.String("key", key),
		zap.Int("tokens", len(result.Tokens)))

	return &result, nil
}

// Put caches result under the image's content hash with the default TTL
func (c *OCRCache) Put(ctx context.Context, image []byte, language string, result ocr.Result) error {
	key := generateKey(c.config.KeyPrefix, c.config.Variant, image, language)

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal OCR result for caching: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache OCR result: %w", err)
	}

	c.logger.Debug("OCR result cached",
		zap.String("key", key),
		zap.Int("tokens", len(result.Tokens)))

	return nil
}

// GetStats returns cache performance statistics
func (c *OCRCache) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := c.countKeys(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalKeys = keys

	return stats, nil
}

func (c *OCRCache) countKeys(ctx context.Context) (int64, error) {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":ocr:*", 0).Iterator()
	var n int64
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return n, nil
}

// Clear removes all cached OCR results
func (c *OCRCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":ocr:*", 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *OCRCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// generateKey derives a cache key from the image content, OCR language and
// recognition settings
func generateKey(prefix, variant string, image []byte, language string) string {
	sum := sha256.Sum256(image)
	hash := hex.EncodeToString(sum[:])
	return fmt.Sprintf("%s:ocr:%s:%s:%s", prefix, language, variant, hash[:32])
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
