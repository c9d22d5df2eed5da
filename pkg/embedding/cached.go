package embedding

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// CachedEmbedder memoizes vectors of an inner Embedder by text hash.
// Only texts missing from the cache reach the inner encoder.
type CachedEmbedder struct {
	inner Embedder

	mu    sync.RWMutex
	cache map[uint64][]float32
}

func NewCachedEmbedder(inner Embedder) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: make(map[uint64][]float32),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]uint64, len(texts))

	var missing []string
	var missingIdx []int
	seen := make(map[uint64]bool)

	c.mu.RLock()
	for i, text := range texts {
		keys[i] = xxhash.Sum64String(text)
		if v, ok := c.cache[keys[i]]; ok {
			out[i] = v
			continue
		}
		if !seen[keys[i]] {
			seen[keys[i]] = true
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.RUnlock()

	if len(missing) > 0 {
		vectors, err := c.inner.Embed(ctx, missing)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		for j, i := range missingIdx {
			c.cache[keys[i]] = vectors[j]
		}
		c.mu.Unlock()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range out {
		if out[i] == nil {
			out[i] = c.cache[keys[i]]
		}
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

func (c *CachedEmbedder) ModelID() string {
	return c.inner.ModelID()
}

func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
