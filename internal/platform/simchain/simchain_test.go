package simchain

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

const (
	mm    = "0x00000000000000000000000000000000000000aa"
	token = "0x00000000000000000000000000000000000000d1"
	acct  = "0x0000000000000000000000000000000000000abc"
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newPool(t *testing.T) (*Chain, domain.MarketMakerService) {
	t.Helper()
	c := New(acct)
	c.SetCollateral(mm, token)
	c.SetBalance(token, acct, e18(10))
	c.SetPool(mm, e18(200), e18(100), e18(50))
	return c, c.BuildMarketMaker(mm)
}

func state(t *testing.T, c *Chain, m domain.MarketMakerService) (funding, supply, shares, balance string) {
	t.Helper()
	ctx := context.Background()
	f, err := m.Funding(ctx)
	require.NoError(t, err)
	s, err := m.TotalPoolShares(ctx)
	require.NoError(t, err)
	sh, err := m.PoolShares(ctx, acct)
	require.NoError(t, err)
	b, err := c.BuildERC20(token).GetCollateral(ctx, acct)
	require.NoError(t, err)
	return f.String(), s.String(), sh.String(), b.String()
}

func TestRemoveFundingReturnsCollateralPerShare(t *testing.T) {
	c, m := newPool(t)

	require.NoError(t, m.RemoveFunding(context.Background(), e18(20)))

	funding, supply, shares, balance := state(t, c, m)
	assert.Equal(t, e18(160).String(), funding)
	assert.Equal(t, e18(80).String(), supply)
	assert.Equal(t, e18(30).String(), shares)
	assert.Equal(t, e18(50).String(), balance)
}

func TestRemoveFundingRevertsOnOverBurn(t *testing.T) {
	c, m := newPool(t)

	for _, burn := range []*big.Int{e18(51), big.NewInt(0)} {
		err := m.RemoveFunding(context.Background(), burn)
		assert.ErrorIs(t, err, domain.ErrTxReverted)
	}

	funding, supply, shares, balance := state(t, c, m)
	assert.Equal(t, e18(200).String(), funding)
	assert.Equal(t, e18(100).String(), supply)
	assert.Equal(t, e18(50).String(), shares)
	assert.Equal(t, e18(10).String(), balance)
}

func TestAddFundingMintsProportionalShares(t *testing.T) {
	c, m := newPool(t)

	require.NoError(t, m.AddFunding(context.Background(), e18(10)))

	funding, supply, shares, balance := state(t, c, m)
	assert.Equal(t, e18(210).String(), funding)
	assert.Equal(t, e18(105).String(), supply)
	assert.Equal(t, e18(55).String(), shares)
	assert.Equal(t, "0", balance)
}
