package omen

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// MarketMaker is a market-maker contract.
type MarketMaker struct {
	client  *Client
	address common.Address
}

// Address returns the contract address.
func (m *MarketMaker) Address() string { return m.address.Hex() }

// GetCollateralToken returns the collateral token address.
func (m *MarketMaker) GetCollateralToken(ctx context.Context) (string, error) {
	out, err := m.client.call(ctx, marketMakerContract, m.address, "collateralToken")
	if err != nil {
		return "", err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("omen: collateralToken: unexpected %T", out[0])
	}
	return addr.Hex(), nil
}

// AddFunding adds amount of collateral to the pool. The collateral must be
// approved first.
func (m *MarketMaker) AddFunding(ctx context.Context, amount *big.Int) error {
	return m.client.transact(ctx, marketMakerContract, m.address, "addFunding", amount)
}

// RemoveFunding burns sharesToBurn pool shares and returns their collateral
// to the account.
func (m *MarketMaker) RemoveFunding(ctx context.Context, sharesToBurn *big.Int) error {
	return m.client.transact(ctx, marketMakerContract, m.address, "removeFunding", sharesToBurn)
}

// Funding returns the collateral held by the pool.
func (m *MarketMaker) Funding(ctx context.Context) (*big.Int, error) {
	return m.client.callUint(ctx, marketMakerContract, m.address, "funding")
}

// TotalPoolShares returns the pool share supply.
func (m *MarketMaker) TotalPoolShares(ctx context.Context) (*big.Int, error) {
	return m.client.callUint(ctx, marketMakerContract, m.address, "totalSupply")
}

// PoolShares returns the pool shares held by account.
func (m *MarketMaker) PoolShares(ctx context.Context, account string) (*big.Int, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("omen: %w: %q", domain.ErrInvalidAddress, account)
	}
	return m.client.callUint(ctx, marketMakerContract, m.address, "balanceOf", common.HexToAddress(account))
}

// ERC20 is a collateral token contract.
type ERC20 struct {
	client  *Client
	address common.Address
}

// Approve allows spender to move amount of the wallet's tokens.
func (t *ERC20) Approve(ctx context.Context, spender string, amount *big.Int) error {
	if !common.IsHexAddress(spender) {
		return fmt.Errorf("omen: %w: %q", domain.ErrInvalidAddress, spender)
	}
	return t.client.transact(ctx, erc20Contract, t.address, "approve", common.HexToAddress(spender), amount)
}

// GetCollateral returns the token balance of account.
func (t *ERC20) GetCollateral(ctx context.Context, account string) (*big.Int, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("omen: %w: %q", domain.ErrInvalidAddress, account)
	}
	return t.client.callUint(ctx, erc20Contract, t.address, "balanceOf", common.HexToAddress(account))
}

var (
	_ domain.MarketMakerService = (*MarketMaker)(nil)
	_ domain.TokenService       = (*ERC20)(nil)
)
