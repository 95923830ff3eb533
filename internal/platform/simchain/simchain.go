// Package simchain is an in-memory chain with market-maker and token
// services, used by tests and by the simulated chain mode for local
// development. Every call is recorded and failures can be injected per
// method.
package simchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// maxCalls bounds the recorded call history.
const maxCalls = 1000

// Call is one recorded contract call.
type Call struct {
	Contract string
	Method   string
	Args     []string
}

// Chain holds the state of every fake contract.
type Chain struct {
	mu sync.Mutex

	account string
	chainID int64

	collateral map[string]string              // market maker -> collateral token
	balances   map[string]map[string]*big.Int // token -> account -> balance
	funding    map[string]*big.Int            // market maker -> funding
	supply     map[string]*big.Int            // market maker -> pool share supply
	shares     map[string]map[string]*big.Int // market maker -> account -> shares
	tokens     map[string]domain.Token

	errs  map[string]error
	gates map[string]chan struct{}
	calls []Call
}

// New creates a chain with the given connected account (empty for a
// disconnected wallet).
func New(account string) *Chain {
	return &Chain{
		account:    account,
		chainID:    100,
		collateral: map[string]string{},
		balances:   map[string]map[string]*big.Int{},
		funding:    map[string]*big.Int{},
		supply:     map[string]*big.Int{},
		shares:     map[string]map[string]*big.Int{},
		tokens:     map[string]domain.Token{},
		errs:       map[string]error{},
		gates:      map[string]chan struct{}{},
	}
}

func key(s string) string { return strings.ToLower(s) }

// Account implements domain.Connection.
func (c *Chain) Account() string { return c.account }

// ChainID implements domain.Connection.
func (c *Chain) ChainID() int64 { return c.chainID }

// SetCollateral binds a market maker to its collateral token.
func (c *Chain) SetCollateral(marketMaker, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collateral[key(marketMaker)] = token
}

// SetToken registers the metadata returned by TokenInfo.
func (c *Chain) SetToken(t domain.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key(t.Address)] = t
}

// TokenInfo returns the registered token metadata.
func (c *Chain) TokenInfo(ctx context.Context, address string) (domain.Token, error) {
	if err := c.enter(ctx, address, "tokenInfo"); err != nil {
		return domain.Token{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[key(address)]
	if !ok {
		return domain.Token{}, fmt.Errorf("simchain: token %s: %w", address, domain.ErrNotFound)
	}
	return t, nil
}

// SetBalance sets a token balance.
func (c *Chain) SetBalance(token, account string, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balances[key(token)] == nil {
		c.balances[key(token)] = map[string]*big.Int{}
	}
	c.balances[key(token)][key(account)] = new(big.Int).Set(v)
}

// SetPool sets funding, share supply and the connected account's shares.
func (c *Chain) SetPool(marketMaker string, funding, supply, userShares *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mm := key(marketMaker)
	c.funding[mm] = new(big.Int).Set(funding)
	c.supply[mm] = new(big.Int).Set(supply)
	if c.shares[mm] == nil {
		c.shares[mm] = map[string]*big.Int{}
	}
	c.shares[mm][key(c.account)] = new(big.Int).Set(userShares)
}

// FailOn makes every call of method return err.
func (c *Chain) FailOn(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[method] = err
}

// Gate makes calls of method block until the returned function is called.
func (c *Chain) Gate(method string) (release func()) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.gates[method] = ch
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the recorded calls.
func (c *Chain) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Methods returns the recorded method names in order.
func (c *Chain) Methods() []string {
	var out []string
	for _, call := range c.Calls() {
		out = append(out, call.Method)
	}
	return out
}

func (c *Chain) enter(ctx context.Context, contract, method string, args ...string) error {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Contract: contract, Method: method, Args: args})
	if len(c.calls) > maxCalls {
		c.calls = c.calls[len(c.calls)-maxCalls:]
	}
	gate := c.gates[method]
	err := c.errs[method]
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// BuildMarketMaker implements domain.Contracts.
func (c *Chain) BuildMarketMaker(address string) domain.MarketMakerService {
	return &MarketMaker{chain: c, address: address}
}

// BuildERC20 implements domain.Contracts.
func (c *Chain) BuildERC20(address string) domain.TokenService {
	return &Token{chain: c, address: address}
}

// MarketMaker is a simulated domain.MarketMakerService.
type MarketMaker struct {
	chain   *Chain
	address string
}

// Address returns the market-maker address.
func (m *MarketMaker) Address() string { return m.address }

// GetCollateralToken returns the bound collateral token.
func (m *MarketMaker) GetCollateralToken(ctx context.Context) (string, error) {
	if err := m.chain.enter(ctx, m.address, "getCollateralToken"); err != nil {
		return "", err
	}
	m.chain.mu.Lock()
	defer m.chain.mu.Unlock()
	return m.chain.collateral[key(m.address)], nil
}

// AddFunding moves collateral from the account into the pool and mints
// shares in proportion to the pool, one to one for an empty pool.
func (m *MarketMaker) AddFunding(ctx context.Context, amount *big.Int) error {
	if err := m.chain.enter(ctx, m.address, "addFunding", amount.String()); err != nil {
		return err
	}
	c := m.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	mm := key(m.address)
	token := key(c.collateral[mm])
	acct := key(c.account)
	if c.balances[token] != nil && c.balances[token][acct] != nil {
		c.balances[token][acct] = new(big.Int).Sub(c.balances[token][acct], amount)
	}
	minted := new(big.Int).Set(amount)
	if supply, funding := c.supply[mm], c.funding[mm]; supply != nil && supply.Sign() > 0 && funding != nil && funding.Sign() > 0 {
		minted.Mul(amount, supply)
		minted.Quo(minted, funding)
	}
	c.funding[mm] = add(c.funding[mm], amount)
	c.supply[mm] = add(c.supply[mm], minted)
	if c.shares[mm] == nil {
		c.shares[mm] = map[string]*big.Int{}
	}
	c.shares[mm][acct] = add(c.shares[mm][acct], minted)
	return nil
}

// RemoveFunding burns sharesToBurn and credits the account with
// funding*sharesToBurn/supply of collateral. Burning more shares than the
// account holds reverts.
func (m *MarketMaker) RemoveFunding(ctx context.Context, sharesToBurn *big.Int) error {
	if err := m.chain.enter(ctx, m.address, "removeFunding", sharesToBurn.String()); err != nil {
		return err
	}
	c := m.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	mm := key(m.address)
	acct := key(c.account)
	held := add(c.shares[mm][acct], nil)
	if sharesToBurn.Sign() <= 0 || sharesToBurn.Cmp(held) > 0 {
		return fmt.Errorf("simchain: removeFunding: burn %s exceeds %s held shares: %w", sharesToBurn, held, domain.ErrTxReverted)
	}
	supply := add(c.supply[mm], nil)
	returned := new(big.Int).Mul(add(c.funding[mm], nil), sharesToBurn)
	returned.Quo(returned, supply)

	c.funding[mm] = new(big.Int).Sub(c.funding[mm], returned)
	c.supply[mm] = new(big.Int).Sub(supply, sharesToBurn)
	c.shares[mm][acct] = new(big.Int).Sub(held, sharesToBurn)

	token := key(c.collateral[mm])
	if c.balances[token] == nil {
		c.balances[token] = map[string]*big.Int{}
	}
	c.balances[token][acct] = add(c.balances[token][acct], returned)
	return nil
}

// Funding returns the pool funding.
func (m *MarketMaker) Funding(ctx context.Context) (*big.Int, error) {
	if err := m.chain.enter(ctx, m.address, "funding"); err != nil {
		return nil, err
	}
	m.chain.mu.Lock()
	defer m.chain.mu.Unlock()
	return add(m.chain.funding[key(m.address)], nil), nil
}

// TotalPoolShares returns the share supply.
func (m *MarketMaker) TotalPoolShares(ctx context.Context) (*big.Int, error) {
	if err := m.chain.enter(ctx, m.address, "totalSupply"); err != nil {
		return nil, err
	}
	m.chain.mu.Lock()
	defer m.chain.mu.Unlock()
	return add(m.chain.supply[key(m.address)], nil), nil
}

// PoolShares returns the shares held by account.
func (m *MarketMaker) PoolShares(ctx context.Context, account string) (*big.Int, error) {
	if err := m.chain.enter(ctx, m.address, "balanceOf", account); err != nil {
		return nil, err
	}
	m.chain.mu.Lock()
	defer m.chain.mu.Unlock()
	if s := m.chain.shares[key(m.address)]; s != nil {
		return add(s[key(account)], nil), nil
	}
	return new(big.Int), nil
}

// Token is a simulated domain.TokenService.
type Token struct {
	chain   *Chain
	address string
}

// Approve records the approval.
func (t *Token) Approve(ctx context.Context, spender string, amount *big.Int) error {
	return t.chain.enter(ctx, t.address, "approve", spender, amount.String())
}

// GetCollateral returns the token balance of account.
func (t *Token) GetCollateral(ctx context.Context, account string) (*big.Int, error) {
	if err := t.chain.enter(ctx, t.address, "getCollateral", account); err != nil {
		return nil, err
	}
	t.chain.mu.Lock()
	defer t.chain.mu.Unlock()
	if b := t.chain.balances[key(t.address)]; b != nil {
		return add(b[key(account)], nil), nil
	}
	return new(big.Int), nil
}

func add(a, b *big.Int) *big.Int {
	out := new(big.Int)
	if a != nil {
		out.Set(a)
	}
	if b != nil {
		out.Add(out, b)
	}
	return out
}

var (
	_ domain.Connection         = (*Chain)(nil)
	_ domain.Contracts          = (*Chain)(nil)
	_ domain.MarketMakerService = (*MarketMaker)(nil)
	_ domain.TokenService       = (*Token)(nil)
)
