package server

import (
	"context"

	"uniquote/internal/model"
)

// CacheSink adapts a QuoteCache into a quote sink, so a block watcher can
// keep the cache warm.
type CacheSink struct {
	cache QuoteCache
}

func NewCacheSink(cache QuoteCache) *CacheSink {
	return &CacheSink{cache: cache}
}

func (c *CacheSink) PutQuotes(ctx context.Context, quotes []model.Quote) error {
	for _, q := range quotes {
		if err := c.cache.Set(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
