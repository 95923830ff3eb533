package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// BalanceCache implements domain.BalanceCache. Balances are decimal strings
// at balance:{token}:{account}.
type BalanceCache struct {
	rdb *redis.Client
	c   *Client
	ttl time.Duration
}

// NewBalanceCache creates a BalanceCache whose entries expire after ttl.
func NewBalanceCache(c *Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{rdb: c.Underlying(), c: c, ttl: ttl}
}

func (bc *BalanceCache) key(token, account string) string {
	return bc.c.Key("balance", strings.ToLower(token), strings.ToLower(account))
}

// SetBalance stores a balance.
func (bc *BalanceCache) SetBalance(ctx context.Context, token, account string, balance *big.Int) error {
	if balance == nil {
		balance = new(big.Int)
	}
	if err := bc.rdb.Set(ctx, bc.key(token, account), balance.String(), bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set balance %s/%s: %w", token, account, err)
	}
	return nil
}

// GetBalance returns a cached balance or domain.ErrNotFound.
func (bc *BalanceCache) GetBalance(ctx context.Context, token, account string) (*big.Int, error) {
	s, err := bc.rdb.Get(ctx, bc.key(token, account)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get balance %s/%s: %w", token, account, err)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("redis: parse balance %s/%s: %q", token, account, s)
	}
	return v, nil
}

// InvalidateBalance drops a cached balance.
func (bc *BalanceCache) InvalidateBalance(ctx context.Context, token, account string) error {
	if err := bc.rdb.Del(ctx, bc.key(token, account)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate balance %s/%s: %w", token, account, err)
	}
	return nil
}

var _ domain.BalanceCache = (*BalanceCache)(nil)
