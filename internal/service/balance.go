package service

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/metrics"
)

// cachedContracts serves collateral balance reads from a BalanceCache and
// passes every other call through.
type cachedContracts struct {
	domain.Contracts
	balances domain.BalanceCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func (c *cachedContracts) BuildERC20(address string) domain.TokenService {
	return &cachedToken{TokenService: c.Contracts.BuildERC20(address), token: address, parent: c}
}

type cachedToken struct {
	domain.TokenService
	token  string
	parent *cachedContracts
}

func (t *cachedToken) GetCollateral(ctx context.Context, account string) (*big.Int, error) {
	if v, err := t.parent.balances.GetBalance(ctx, t.token, account); err == nil {
		t.parent.metrics.CacheLookup("balance", true)
		return v, nil
	}
	t.parent.metrics.CacheLookup("balance", false)

	v, err := t.TokenService.GetCollateral(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := t.parent.balances.SetBalance(ctx, t.token, account, v); err != nil {
		t.parent.logger.WarnContext(ctx, "funding_service: cache balance failed",
			slog.String("token", t.token),
			slog.String("error", err.Error()),
		)
	}
	return v, nil
}
