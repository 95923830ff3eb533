package domain

import (
	"context"
	"math/big"
	"time"
)

// MarketCache provides fast market metadata lookups.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, address string) (Market, error)
	Invalidate(ctx context.Context, address string) error
}

// BalanceCache keeps recently fetched token balances.
type BalanceCache interface {
	SetBalance(ctx context.Context, token, account string, balance *big.Int) error
	GetBalance(ctx context.Context, token, account string) (*big.Int, error)
	InvalidateBalance(ctx context.Context, token, account string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub messaging.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
}

// Message is a payload received from a bus subscription together with the
// concrete channel it was published on.
type Message struct {
	Channel string
	Payload []byte
}
