package domain

import (
	"context"
	"math/big"
)

// MarketMakerService is the contract surface of a market maker.
type MarketMakerService interface {
	Address() string
	GetCollateralToken(ctx context.Context) (string, error)
	AddFunding(ctx context.Context, amount *big.Int) error
	// RemoveFunding burns sharesToBurn pool shares of the account.
	RemoveFunding(ctx context.Context, sharesToBurn *big.Int) error

	Funding(ctx context.Context) (*big.Int, error)
	TotalPoolShares(ctx context.Context) (*big.Int, error)
	PoolShares(ctx context.Context, account string) (*big.Int, error)
}

// TokenService is the contract surface of an ERC20 collateral token.
type TokenService interface {
	Approve(ctx context.Context, spender string, amount *big.Int) error
	GetCollateral(ctx context.Context, account string) (*big.Int, error)
}

// Connection exposes the connected wallet. Account is empty when no wallet
// is connected.
type Connection interface {
	Account() string
	ChainID() int64
}

// Contracts builds contract services bound to the current connection.
type Contracts interface {
	BuildMarketMaker(address string) MarketMakerService
	BuildERC20(address string) TokenService
}
