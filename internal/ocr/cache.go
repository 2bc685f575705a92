package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sync"
)

// Cache stores OCR text by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, text string) error
}

// CacheKey identifies a result by engine and image content.
func CacheKey(engine string, data []byte) string {
	sum := sha256.Sum256(data)
	return engine + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]string)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.items[key]
	return text, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = text
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Cached consults a cache before calling the wrapped engine. Empty results
// are not stored so that they are retried on the next build.
type Cached struct {
	Engine Engine
	Cache  Cache
	Logger *log.Logger
}

// WithCache wraps engine. A nil cache returns engine unchanged.
func WithCache(engine Engine, cache Cache, logger *log.Logger) Engine {
	if cache == nil {
		return engine
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{Engine: engine, Cache: cache, Logger: logger}
}

func (c *Cached) Name() string { return c.Engine.Name() }

// Recognize implements Engine.
func (c *Cached) Recognize(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	key := CacheKey(c.Engine.Name(), data)
	if text, ok, err := c.Cache.Get(ctx, key); err != nil {
		c.Logger.Printf("OCR cache lookup failed: %v", err)
	} else if ok {
		return text, nil
	}

	text, err := c.Engine.Recognize(ctx, path)
	if err != nil || text == "" {
		return text, err
	}
	if err := c.Cache.Put(ctx, key, text); err != nil {
		c.Logger.Printf("OCR cache store failed: %v", err)
	}
	return text, nil
}
