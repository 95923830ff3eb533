package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// MarketCache implements domain.MarketCache with JSON values at
// market:{address}.
type MarketCache struct {
	rdb *redis.Client
	c   *Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache whose entries expire after ttl.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	return &MarketCache{rdb: c.Underlying(), c: c, ttl: ttl}
}

// key lower-cases address so checksummed and plain forms share an entry.
func (mc *MarketCache) key(address string) string {
	return mc.c.Key("market", strings.ToLower(address))
}

// Set stores a market.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.Address, err)
	}
	if err := mc.rdb.Set(ctx, mc.key(market.Address), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.Address, err)
	}
	return nil
}

// Get returns a cached market or domain.ErrNotFound.
func (mc *MarketCache) Get(ctx context.Context, address string) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, mc.key(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", address, err)
	}
	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", address, err)
	}
	return market, nil
}

// Invalidate removes a market.
func (mc *MarketCache) Invalidate(ctx context.Context, address string) error {
	if err := mc.rdb.Del(ctx, mc.key(address)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", address, err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
