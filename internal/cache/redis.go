package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/redaction-review/internal/redaction"
	"go.uber.org/zap"
)

// SegmentCache caches computed render segments in Redis
type SegmentCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewSegmentCache creates a new Redis-backed segment cache
func NewSegmentCache(config *Config, logger *zap.Logger) (*SegmentCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	cache := newWithClient(redis.NewClient(opts), config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.client.Ping(ctx).Err(); err != nil {
		cache.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Segment cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

func newWithClient(client *redis.Client, config *Config, logger *zap.Logger) *SegmentCache {
	return &SegmentCache{
		client: client,
		config: config,
		logger: logger,
	}
}

// Get returns the cached segments for text rendered against redactions
func (c *SegmentCache) Get(ctx context.Context, text string, redactions []redaction.Redaction) ([]redaction.Segment, bool) {
	key := c.Key(text, redactions)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		c.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false
	} else if err != nil {
		c.misses.Add(1)
		c.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var cached CachedSegments
	if err := json.Unmarshal(data, &cached); err != nil {
		c.misses.Add(1)
		c.logger.Error("Failed to unmarshal cached segments", zap.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}

	c.hits.Add(1)
	c.logger.Debug("Cache hit", zap.String("key", key), zap.Int("segments", len(cached.Segments)))
	return cached.Segments, true
}

// Store caches the segments for text rendered against redactions
func (c *SegmentCache) Store(ctx context.Context, text string, redactions []redaction.Redaction, segments []redaction.Segment) error {
	key := c.Key(text, redactions)

	data, err := json.Marshal(CachedSegments{
		Segments: segments,
		CachedAt: time.Now(),
		TTL:      int64(c.config.DefaultTTL.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal segments for caching: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Error("Failed to cache segments", zap.Error(err))
		return fmt.Errorf("failed to cache segments: %w", err)
	}
	return nil
}

// Segments returns cached segments or computes and caches them
func (c *SegmentCache) Segments(ctx context.Context, text string, redactions []redaction.Redaction) []redaction.Segment {
	if segments, ok := c.Get(ctx, text, redactions); ok {
		return segments
	}
	segments := redaction.ComputeSegments(text, redactions)
	if err := c.Store(ctx, text, redactions, segments); err != nil {
		c.logger.Warn("Serving uncached segments", zap.Error(err))
	}
	return segments
}

// GetStats returns cache performance statistics
func (c *SegmentCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}
	return stats, nil
}

// Clear removes all cached segment lists
func (c *SegmentCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":seg:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *SegmentCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Key derives the cache key from the text and every redaction field that
// affects rendering, so any lifecycle change yields a new key
func (c *SegmentCache) Key(text string, redactions []redaction.Redaction) string {
	hasher := sha256.New()
	hasher.Write([]byte(text))
	for _, r := range redactions {
		fmt.Fprintf(hasher, "\x00%d\x1f%s\x1f%s\x1f%t", r.ID, r.Text, r.Status, r.IsManual)
	}
	hash := hex.EncodeToString(hasher.Sum(nil))
	return fmt.Sprintf("%s:seg:%s", c.config.KeyPrefix, hash[:32])
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	start := strings.Index(url, "://") + len("://")
	if start < len("://") || start > at {
		start = 0
	}
	colon := strings.LastIndex(url[start:at], ":")
	if colon < 0 {
		return url
	}
	return url[:start+colon+1] + "***" + url[at:]
}
