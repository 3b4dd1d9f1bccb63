package models

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/anamnesis-ai/anamnesis/src/cache"
)

// CachedLLM wraps a Generator and memoizes completions through the LRU
// cache. Extraction prompts repeat whenever the same exchange is replayed,
// so hits are common in practice.
type CachedLLM struct {
	Inner Generator
	Cache *cache.LRUCache
}

func NewCachedLLM(inner Generator, size int, ttl time.Duration) *CachedLLM {
	return &CachedLLM{
		Inner: inner,
		Cache: cache.NewLRUCache(size, ttl),
	}
}

func (c *CachedLLM) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	key := cache.HashKey(fmt.Sprintf("%s|%s", strconv.Itoa(maxTokens), prompt))
	if v, ok := c.Cache.Get(key); ok {
		if text, ok := v.(string); ok {
			return text, nil
		}
	}
	text, err := c.Inner.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	c.Cache.Set(key, text)
	return text, nil
}

var _ Generator = (*CachedLLM)(nil)
