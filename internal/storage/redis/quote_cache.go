package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"uniquote/internal/model"
)

const keyPrefix = "uniquote:quote"

// QuoteCache keeps the latest quote per pool with a TTL, so that repeated
// HTTP requests inside one block do not hit the node.
type QuoteCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func NewQuoteCache(client redis.Cmdable, ttl time.Duration) *QuoteCache {
	return &QuoteCache{client: client, ttl: ttl}
}

// Get returns the cached quote for a pool. ok is false on a miss.
func (c *QuoteCache) Get(ctx context.Context, chainID uint64, pool string) (model.Quote, bool, error) {
	val, err := c.client.Get(ctx, quoteKey(chainID, pool)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Quote{}, false, nil
		}
		return model.Quote{}, false, fmt.Errorf("redis get: %w", err)
	}
	var q model.Quote
	if err := json.Unmarshal(val, &q); err != nil {
		return model.Quote{}, false, fmt.Errorf("unmarshal cached quote: %w", err)
	}
	return q, true, nil
}

// Set stores a quote under its pool key.
func (c *QuoteCache) Set(ctx context.Context, q model.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}
	if err := c.client.Set(ctx, quoteKey(q.ChainID, q.Pool), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func quoteKey(chainID uint64, pool string) string {
	return fmt.Sprintf("%s:%d:%s", keyPrefix, chainID, strings.ToLower(pool))
}
