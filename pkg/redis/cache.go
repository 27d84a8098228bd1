package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	fullKey := fmt.Sprintf("%s:cache:%s", c.prefix, key)
	data, err := c.client.Redis().Get(ctx, fullKey).Bytes()
	if err != nil {
		// Key not found is not an error
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	fullKey := fmt.Sprintf("%s:cache:%s", c.prefix, key)
	return c.client.Redis().Set(ctx, fullKey, data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	fullKey := fmt.Sprintf("%s:cache:%s", c.prefix, key)
	return c.client.Redis().Del(ctx, fullKey).Err()
}

// DeletePattern removes every cached value whose key matches pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	rdb := c.client.Redis()
	iter := rdb.Scan(ctx, 0, fmt.Sprintf("%s:cache:%s", c.prefix, pattern), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("cache scan failed: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := rdb.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("cache delete failed: %w", err)
	}
	return len(keys), nil
}

// GetOrSet retrieves from cache or calls fn to populate it
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	// Try cache first
	found, err := c.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	// Cache miss - call function
	value, err := fn()
	if err != nil {
		return err
	}

	// Store in cache (실패해도 응답은 계속)
	_ = c.Set(ctx, key, value, ttl)

	// Unmarshal into dest
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute  // 조회 API 응답
	TTLMedium = 10 * time.Minute // 프로파일 목록
	TTLLong   = 1 * time.Hour    // 종목 유니버스
)

// Common cache key generators
func SnapshotKey(ticker string, date string) string {
	return fmt.Sprintf("snapshot:%s:%s", ticker, date)
}

func ProfileKey(profile string, date string, limit int) string {
	return fmt.Sprintf("profile:%s:%s:%d", profile, date, limit)
}

func TopKey(column string, date string, limit int) string {
	return fmt.Sprintf("top:%s:%s:%d", column, date, limit)
}

func UndervaluedKey(date string, limit int) string {
	return fmt.Sprintf("undervalued:%s:%d", date, limit)
}

// SectorKey caches sector counts of one data date
func SectorKey(date string) string {
	return fmt.Sprintf("sectors:%s", date)
}

// DatePrefix matches every key cached for one data date
func DatePrefix(date string) string {
	return fmt.Sprintf("*:%s*", date)
}
