package toolregistry

import (
	"context"
	"strings"
	"time"

	"reasoner/internal/domain/agent/ports"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 5 * time.Minute

	metadataCacheHit = "cache_hit"
)

// CacheConfig configures the tool result cache.
type CacheConfig struct {
	// MaxSize is the maximum number of entries in the LRU cache.
	MaxSize int
	// TTL is how long a cached result remains valid.
	TTL time.Duration
}

// DefaultCacheConfig returns the default cache sizing.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{MaxSize: defaultCacheMaxSize, TTL: defaultCacheTTL}
}

type cacheEntry struct {
	result   ports.ToolResult
	storedAt time.Time
}

// cachedTool memoizes successful results keyed by normalized input.
type cachedTool struct {
	Tool
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
	now   func() time.Time
}

// WithCache wraps tool with an LRU result cache. Zero config values fall
// back to DefaultCacheConfig.
func WithCache(tool Tool, config CacheConfig) Tool {
	if tool == nil {
		return nil
	}
	if config.MaxSize <= 0 {
		config.MaxSize = defaultCacheMaxSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](config.MaxSize)
	if err != nil {
		return tool
	}
	return &cachedTool{Tool: tool, cache: cache, ttl: config.TTL, now: time.Now}
}

func (c *cachedTool) Invoke(ctx context.Context, input string) (ports.ToolResult, error) {
	key := cacheKey(input)
	if entry, ok := c.cache.Get(key); ok {
		if c.now().Sub(entry.storedAt) < c.ttl {
			hit := entry.result
			hit.Sources = append([]ports.Source(nil), entry.result.Sources...)
			hit.Metadata = cloneMetadata(entry.result.Metadata)
			if hit.Metadata == nil {
				hit.Metadata = make(map[string]any, 1)
			}
			hit.Metadata[metadataCacheHit] = true
			return hit, nil
		}
		// Expired; evict so the LRU bookkeeping stays clean.
		c.cache.Remove(key)
	}

	result, err := c.Tool.Invoke(ctx, input)
	if err != nil {
		return result, err
	}
	c.cache.Add(key, cacheEntry{
		result: ports.ToolResult{
			Content:  result.Content,
			Sources:  append([]ports.Source(nil), result.Sources...),
			Metadata: cloneMetadata(result.Metadata),
		},
		storedAt: c.now(),
	})
	return result, nil
}

// cacheKey folds case and whitespace so trivially different inputs share an entry.
func cacheKey(input string) string {
	return strings.ToLower(strings.Join(strings.Fields(input), " "))
}

// cloneMetadata performs a shallow copy of metadata so cached entries do not
// alias caller maps.
func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
