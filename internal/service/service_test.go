package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/metrics"
	"github.com/alanyoungcy/marketfund/internal/platform/simchain"
)

const (
	mmAddr  = "0x00000000000000000000000000000000000000aa"
	daiAddr = "0x00000000000000000000000000000000000000d1"
	user    = "0x0000000000000000000000000000000000000abc"
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type env struct {
	chain    *simchain.Chain
	markets  *memMarkets
	cache    *memCache
	audit    *memAudit
	bus      *memBus
	ledger   *memLedger
	locks    *memLocks
	notifier *memNotifier

	marketSvc *MarketService
	funding   *FundingService
}

func newEnv(t *testing.T, account string) *env {
	t.Helper()
	e := &env{
		chain:    simchain.New(account),
		markets:  newMemMarkets(),
		cache:    newMemCache(),
		audit:    &memAudit{},
		bus:      &memBus{},
		ledger:   newMemLedger(),
		locks:    newMemLocks(),
		notifier: &memNotifier{},
	}
	e.chain.SetToken(domain.Token{Address: daiAddr, Symbol: "DAI", Decimals: 18})
	e.chain.SetCollateral(mmAddr, daiAddr)
	e.chain.SetPool(mmAddr, e18(100), e18(100), e18(25))
	e.chain.SetBalance(daiAddr, user, e18(10))

	m := metrics.New()
	log := discardLogger()
	e.marketSvc = NewMarketService(e.markets, e.cache, e.audit, e.bus, e.chain, e.chain, m, log)
	recorder := NewFundingRecorder(e.ledger, e.audit, e.bus, e.notifier, m, log)
	e.funding = NewFundingService(e.chain, e.chain, e.cache, e.marketSvc, e.ledger, e.locks, recorder, m,
		FundingOptions{ActionTimeout: 5 * time.Second, LockTTL: 10 * time.Second, SessionTTL: time.Minute}, log)
	return e
}

func (e *env) sync(t *testing.T) domain.Market {
	t.Helper()
	m, err := e.marketSvc.SyncMarket(context.Background(), SyncRequest{
		Address:  mmAddr,
		Question: "Will it rain tomorrow?",
		Outcomes: []domain.Outcome{
			{Index: 0, Name: "Yes", Probability: 0.7, CurrentPrice: 0.7},
			{Index: 1, Name: "No", Probability: 0.3, CurrentPrice: 0.3},
		},
		Account:  user,
		Holdings: map[int]*big.Int{0: e18(5)},
	})
	require.NoError(t, err)
	return m
}

func (e *env) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.funding.Wait(ctx))
}

func (e *env) fundingMessages() []domain.Message {
	var out []domain.Message
	for _, m := range e.bus.Messages() {
		if m.Channel == domain.FundingChannel(mmAddr) {
			out = append(out, m)
		}
	}
	return out
}

func TestNormaliseAddress(t *testing.T) {
	got, err := NormaliseAddress(" 0x00000000000000000000000000000000000000AA ")
	require.NoError(t, err)
	assert.Equal(t, mmAddr, got)

	_, err = NormaliseAddress("0x123")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestSyncMarketReadsCollateral(t *testing.T) {
	e := newEnv(t, user)
	m := e.sync(t)

	assert.Equal(t, mmAddr, m.Address)
	assert.Equal(t, domain.Token{Address: daiAddr, Symbol: "DAI", Decimals: 18}, m.Collateral)
	assert.Contains(t, e.chain.Methods(), "getCollateralToken")
	assert.Equal(t, []string{"market.sync"}, e.audit.Events())
	assert.Equal(t, []string{mmAddr}, e.cache.invalidated)

	msgs := e.bus.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MarketChannel(mmAddr), msgs[0].Channel)

	h, err := e.markets.Holdings(context.Background(), mmAddr, user)
	require.NoError(t, err)
	assert.Equal(t, e18(5).String(), h[0].String())
}

func TestSyncMarketValidation(t *testing.T) {
	e := newEnv(t, user)
	two := []domain.Outcome{{Index: 0, Name: "Yes"}, {Index: 1, Name: "No"}}

	tests := []struct {
		name string
		req  SyncRequest
		want error
	}{
		{"bad address", SyncRequest{Address: "nope", Outcomes: two}, domain.ErrInvalidAddress},
		{"one outcome", SyncRequest{Address: mmAddr, Outcomes: two[:1]}, domain.ErrInvalidMarket},
		{"duplicate index", SyncRequest{Address: mmAddr, Outcomes: []domain.Outcome{{Index: 0, Name: "a"}, {Index: 0, Name: "b"}}}, domain.ErrInvalidMarket},
		{"unnamed", SyncRequest{Address: mmAddr, Outcomes: []domain.Outcome{{Index: 0, Name: "a"}, {Index: 1}}}, domain.ErrInvalidMarket},
		{"probability", SyncRequest{Address: mmAddr, Outcomes: []domain.Outcome{{Index: 0, Name: "a", Probability: 1.5}, {Index: 1, Name: "b"}}}, domain.ErrInvalidMarket},
		{"unknown token", SyncRequest{Address: mmAddr, Collateral: "0x00000000000000000000000000000000000000ff", Outcomes: two}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.marketSvc.SyncMarket(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	count, err := e.marketSvc.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetMarketUsesCache(t *testing.T) {
	e := newEnv(t, user)
	e.sync(t)

	for i := 0; i < 3; i++ {
		m, err := e.marketSvc.GetMarket(context.Background(), mmAddr)
		require.NoError(t, err)
		assert.Equal(t, "Will it rain tomorrow?", m.Question)
	}
	assert.Equal(t, 1, e.markets.gets)

	_, err := e.marketSvc.GetMarket(context.Background(), "0x00000000000000000000000000000000000000bb")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketMakerData(t *testing.T) {
	e := newEnv(t, user)
	m := e.sync(t)

	data, err := e.marketSvc.MarketMakerData(context.Background(), m, user)
	require.NoError(t, err)
	assert.Equal(t, e18(100).String(), data.MarketMakerFunding.String())
	assert.Equal(t, e18(100).String(), data.TotalPoolShares.String())
	assert.Equal(t, e18(25).String(), data.UserPoolShares.String())
	assert.Equal(t, e18(25).String(), data.MarketMakerUserFunding.String())

	require.Len(t, data.Balances, 2)
	assert.Equal(t, "Yes", data.Balances[0].OutcomeName)
	assert.Equal(t, 0.7, data.Balances[0].Probability)
	assert.Equal(t, e18(5).String(), data.Balances[0].Shares.String())
	assert.Equal(t, e18(5).String(), data.Balances[0].Payout.String())
	assert.False(t, data.Balances[1].HasShares())
}

func TestMarketMakerDataDisconnected(t *testing.T) {
	e := newEnv(t, "")
	m := e.sync(t)

	data, err := e.marketSvc.MarketMakerData(context.Background(), m, "")
	require.NoError(t, err)
	assert.Zero(t, data.UserPoolShares.Sign())
	assert.Zero(t, data.MarketMakerUserFunding.Sign())
	assert.NotContains(t, e.chain.Methods(), "balanceOf")
}

func TestMarketMakerDataEmptyPool(t *testing.T) {
	e := newEnv(t, user)
	m := e.sync(t)
	e.chain.SetPool(mmAddr, big.NewInt(0), big.NewInt(0), big.NewInt(0))

	data, err := e.marketSvc.MarketMakerData(context.Background(), m, user)
	require.NoError(t, err)
	assert.Zero(t, data.MarketMakerUserFunding.Sign())
}

func TestFundingViewOpensSession(t *testing.T) {
	e := newEnv(t, user)
	e.sync(t)

	v, err := e.funding.View(context.Background(), mmAddr)
	require.NoError(t, err)
	assert.Equal(t, "Will it rain tomorrow?", v.Title)
	assert.Equal(t, "25.00", v.Totals[1].Value)
	assert.Equal(t, "25.00", v.Totals[1].Percentage)
	assert.Equal(t, "10.00", v.Amount.Balance)
	assert.Equal(t, domain.StatusReady, v.Status)
	assert.Equal(t, 1, e.funding.Sessions())

	_, err = e.funding.View(context.Background(), mmAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, e.funding.Sessions())
	assert.Equal(t, domain.StatusReady, e.funding.Status(mmAddr))
}

func TestFundingViewUnknownMarket(t *testing.T) {
	e := newEnv(t, user)
	_, err := e.funding.View(context.Background(), mmAddr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, e.funding.Sessions())
}

func TestSetAmountAndUseMax(t *testing.T) {
	e := newEnv(t, user)
	e.sync(t)
	ctx := context.Background()

	v, err := e.funding.SetAmount(ctx, mmAddr, "1.5")
	require.NoError(t, err)
	assert.Equal(t, "1.5", v.Amount.Input.Value)

	v, err = e.funding.SetAmount(ctx, mmAddr, "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, "1.5", v.Amount.Input.Value)
	assert.NotEmpty(t, v.Amount.Error)

	v, err = e.funding.UseMax(ctx, mmAddr)
	require.NoError(t, err)
	assert.Equal(t, "10", v.Amount.Input.Value)
	assert.Empty(t, v.Amount.Error)
}

func TestAddFundingRecordsAction(t *testing.T) {
	e := newEnv(t, user)
	e.sync(t)
	ctx := context.Background()

	_, err := e.funding.SetAmount(ctx, mmAddr, "2")
	require.NoError(t, err)
	id, err := e.funding.AddFunding(ctx, mmAddr)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	e.wait(t)

	row, ok := e.ledger.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.FundingAdd, row.Kind)
	assert.Equal(t, domain.FundingSucceeded, row.Status)
	assert.Equal(t, e18(2).String(), row.Amount.String())
	assert.Equal(t, user, row.Account)
	assert.NotNil(t, row.CompletedAt)

	assert.Contains(t, e.audit.Events(), "funding.add")
	assert.Equal(t, []sentNotification{{event: "funding_added", title: "Funding added"}}, e.notifier.Sent())
	assert.Len(t, e.fundingMessages(), 2)
	assert.False(t, e.locks.Held("funding:"+mmAddr))

	v, err := e.funding.View(ctx, mmAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, v.Status)
	assert.Equal(t, "27.00", v.Totals[1].Value)
	assert.Equal(t, "8.00", v.Amount.Balance)
}

func TestAddFundingFailure(t *testing.T) {
	e := newEnv(t, user)
	e.sync(t)
	ctx := context.Background()
	e.chain.FailOn("approve", errors.New("nonce too low"))

	_, err := e.funding.SetAmount(ctx, mmAddr, "1")
	require.NoError(t, err)
	id, err := e.funding.AddFunding(ctx, mmAddr)
	require.NoError(t, err)
	e.wait(t)

	row, ok := e.ledger.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.FundingFailed, row.Status)
	assert.Contains(t, row.Error, "nonce too low")
	assert.Equal(t, domain.StatusError, e.funding.Status(mmAddr))
	assert.Equal(t, []sentNotification{{event: "funding_failed", title: "Funding action failed"}}, e.notifier.Sent())
	assert.NotContains(t, e.chain.Methods(), "addFunding")
}

func TestStartRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("zero amount", func(t *testing.T) {
		e := newEnv(t, user)
		e.sync(t)
		_, err := e.funding.AddFunding(ctx, mmAddr)
		assert.ErrorIs(t, err, domain.ErrActionDisabled)
	})

	t.Run("disconnected", func(t *testing.T) {
		e := newEnv(t, "")
		e.sync(t)
		_, err := e.funding.RemoveFunding(ctx, mmAddr)
		assert.ErrorIs(t, err, domain.ErrNotConnected)
	})

	t.Run("lock held elsewhere", func(t *testing.T) {
		e := newEnv(t, user)
		e.sync(t)
		_, err := e.locks.Acquire(ctx, "funding:"+mmAddr, time.Minute)
		require.NoError(t, err)
		_, err = e.funding.SetAmount(ctx, mmAddr, "1")
		require.NoError(t, err)

		_, err = e.funding.AddFunding(ctx, mmAddr)
		assert.ErrorIs(t, err, domain.ErrLockHeld)
		assert.Equal(t, domain.StatusReady, e.funding.Status(mmAddr))
		assert.Empty(t, e.fundingMessages())
	})
}

func TestRemoveFunding(t *testing.T) {
	e := newEnv(t, user)
	e.sync(t)
	ctx := context.Background()

	id, err := e.funding.RemoveFunding(ctx, mmAddr)
	require.NoError(t, err)
	e.wait(t)

	row, ok := e.ledger.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.FundingRemove, row.Kind)
	assert.Equal(t, e18(25).String(), row.Amount.String())
	assert.Equal(t, domain.FundingSucceeded, row.Status)
	assert.Equal(t, []sentNotification{{event: "funding_removed", title: "Funding removed"}}, e.notifier.Sent())

	v, err := e.funding.View(ctx, mmAddr)
	require.NoError(t, err)
	assert.Equal(t, "0.00", v.Totals[1].Value)
	assert.Equal(t, "75.00", v.Totals[0].Value)

	_, err = e.funding.RemoveFunding(ctx, mmAddr)
	assert.ErrorIs(t, err, domain.ErrActionDisabled)

	history, err := e.funding.History(ctx, mmAddr, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRemoveFundingBurnsPoolShares(t *testing.T) {
	e := newEnv(t, user)
	// Funding is twice the share supply after trading fees accrued.
	e.chain.SetPool(mmAddr, e18(200), e18(100), e18(50))
	e.sync(t)
	ctx := context.Background()

	id, err := e.funding.RemoveFunding(ctx, mmAddr)
	require.NoError(t, err)
	e.wait(t)

	row, ok := e.ledger.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.FundingSucceeded, row.Status)
	assert.Equal(t, e18(100).String(), row.Amount.String(), "ledger records the collateral value")

	var burned []string
	for _, c := range e.chain.Calls() {
		if c.Method == "removeFunding" {
			burned = c.Args
		}
	}
	assert.Equal(t, []string{e18(50).String()}, burned)

	v, err := e.funding.View(ctx, mmAddr)
	require.NoError(t, err)
	assert.Equal(t, "100.00", v.Totals[0].Value)
	assert.Equal(t, "0.00", v.Totals[1].Value)
	assert.Equal(t, "50.00", v.Totals[2].Value)
	assert.Equal(t, "0.00", v.Totals[3].Value)
	assert.Equal(t, "110.00", v.Amount.Balance)
}

func TestLoadingBlocksSecondAction(t *testing.T) {
	e := newEnv(t, user)
	e.sync(t)
	ctx := context.Background()
	release := e.chain.Gate("addFunding")

	_, err := e.funding.SetAmount(ctx, mmAddr, "1")
	require.NoError(t, err)
	_, err = e.funding.AddFunding(ctx, mmAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLoading, e.funding.Status(mmAddr))

	v, err := e.funding.View(ctx, mmAddr)
	require.NoError(t, err)
	require.NotNil(t, v.Loading)
	assert.Equal(t, "Add funding amount: 1.00 DAI ...", v.Loading.Message)

	_, err = e.funding.AddFunding(ctx, mmAddr)
	assert.ErrorIs(t, err, domain.ErrActionDisabled)
	assert.Equal(t, 0, e.funding.Evict(), "loading sessions are kept")

	release()
	e.wait(t)
	assert.Equal(t, domain.StatusReady, e.funding.Status(mmAddr))
}

func TestEvictIdleSessions(t *testing.T) {
	e := newEnv(t, user)
	e.sync(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.funding.now = func() time.Time { return now }

	_, err := e.funding.View(context.Background(), mmAddr)
	require.NoError(t, err)
	assert.Equal(t, 0, e.funding.Evict())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, e.funding.Evict())
	assert.Zero(t, e.funding.Sessions())
}

func TestHistoryInvalidAddress(t *testing.T) {
	e := newEnv(t, user)
	_, err := e.funding.History(context.Background(), "zzz", domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestArchiveService(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	arch := &memArchiver{n: 7}
	svc := NewArchiveService(arch, 30, time.Hour, discardLogger())
	svc.now = func() time.Time { return now }

	n, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, now.Add(-30*24*time.Hour), arch.before)

	arch.err = errors.New("bucket gone")
	_, err = svc.Run(context.Background())
	assert.ErrorContains(t, err, "bucket gone")
}

func TestArchiveLoopStopsOnCancel(t *testing.T) {
	arch := &memArchiver{}
	svc := NewArchiveService(arch, 1, time.Hour, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.RunLoop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, arch.before.IsZero(), "runs once before waiting")
}
