package redis

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

func TestKeys(t *testing.T) {
	bare := &Client{}
	assert.Equal(t, "market:0xabcdef", NewMarketCache(bare, time.Minute).key("0xAbCdEf"))
	assert.Equal(t, "balance:0xaa:0xbb", NewBalanceCache(bare, time.Minute).key("0xAA", "0xBb"))

	c := &Client{prefix: "marketfund"}
	assert.Equal(t, "marketfund:market:0xabcdef", NewMarketCache(c, time.Minute).key("0xAbCdEf"))
	assert.Equal(t, "marketfund:balance:0xaa:0xbb", NewBalanceCache(c, time.Minute).key("0xAA", "0xBb"))
	assert.Equal(t, "marketfund:lock:funding", NewLockManager(c).key("funding"))
	assert.Equal(t, "marketfund:ratelimit:0x1", NewRateLimiter(c).key("0x1"))
	assert.Equal(t, "ch:funding:0xabc", domain.FundingChannel("0xABC"))
	assert.Equal(t, "ch:market:0xabc", domain.MarketChannel("0xAbc"))
	assert.True(t, hasPattern(domain.FundingChannelPrefix+"*"))
	assert.False(t, hasPattern(domain.FundingChannel("0x1")))
}

// testClient connects to MARKETFUND_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("MARKETFUND_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MARKETFUND_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, PoolSize: 4, KeyPrefix: "marketfund-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMarketCacheIntegration(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	mc := NewMarketCache(c, time.Minute)
	addr := "0x" + uuid.NewString()[:8]

	_, err := mc.Get(ctx, addr)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, mc.Set(ctx, domain.Market{Address: addr, Question: "q?"}))
	got, err := mc.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "q?", got.Question)

	require.NoError(t, mc.Invalidate(ctx, addr))
	_, err = mc.Get(ctx, addr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBalanceCacheIntegration(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	bc := NewBalanceCache(c, time.Minute)
	acct := uuid.NewString()

	require.NoError(t, bc.SetBalance(ctx, "0xT", acct, big.NewInt(42)))
	got, err := bc.GetBalance(ctx, "0xt", acct)
	require.NoError(t, err)
	assert.Equal(t, "42", got.String())

	require.NoError(t, bc.InvalidateBalance(ctx, "0xT", acct))
	_, err = bc.GetBalance(ctx, "0xT", acct)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockIntegration(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)
	key := "test:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	unlock2, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestRateLimiterIntegration(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)
	key := "test:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignalBusIntegration(t *testing.T) {
	c := testClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus := NewSignalBus(c)
	market := "0x" + uuid.NewString()[:8]

	msgs, err := bus.Subscribe(ctx, domain.FundingChannelPrefix+"*")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.FundingChannel(market), []byte("hello")))

	select {
	case msg := <-msgs:
		assert.Equal(t, domain.FundingChannel(market), msg.Channel)
		assert.Equal(t, "hello", string(msg.Payload))
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
