package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/marketfund/internal/amount"
	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/metrics"
)

// TokenInfoReader resolves the metadata of an ERC20 token.
type TokenInfoReader interface {
	TokenInfo(ctx context.Context, address string) (domain.Token, error)
}

// SyncRequest describes a market to register or update. An empty Collateral
// is read from the market-maker contract. Holdings, when set, replace the
// outcome shares recorded for Account.
type SyncRequest struct {
	Address    string
	Question   string
	Resolution *time.Time
	Collateral string
	Outcomes   []domain.Outcome
	Account    string
	Holdings   map[int]*big.Int
}

// MarketService handles market metadata and the chain reads that make up a
// market's render data.
type MarketService struct {
	markets   domain.MarketStore
	cache     domain.MarketCache
	audit     domain.AuditStore
	bus       domain.SignalBus
	contracts domain.Contracts
	tokens    TokenInfoReader
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	audit domain.AuditStore,
	bus domain.SignalBus,
	contracts domain.Contracts,
	tokens TokenInfoReader,
	m *metrics.Metrics,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		cache:     cache,
		audit:     audit,
		bus:       bus,
		contracts: contracts,
		tokens:    tokens,
		metrics:   m,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// NormaliseAddress validates a hex address and returns its lowercase form,
// which is the market key everywhere in the system.
func NormaliseAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

// SyncMarket validates req, resolves the collateral token and stores the
// market. The cache entry is invalidated and the update published on the
// market channel.
func (s *MarketService) SyncMarket(ctx context.Context, req SyncRequest) (domain.Market, error) {
	addr, err := NormaliseAddress(req.Address)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: sync: %w", err)
	}
	if err := validateOutcomes(req.Outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: sync %s: %w", addr, err)
	}

	collateral := req.Collateral
	if collateral == "" {
		collateral, err = s.contracts.BuildMarketMaker(addr).GetCollateralToken(ctx)
		if err != nil {
			return domain.Market{}, fmt.Errorf("market_service: read collateral of %s: %w", addr, err)
		}
	}
	collateral, err = NormaliseAddress(collateral)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: collateral: %w", err)
	}
	token, err := s.tokens.TokenInfo(ctx, collateral)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: token info %s: %w", collateral, err)
	}
	token.Address = collateral

	now := time.Now().UTC()
	m := domain.Market{
		Address:    addr,
		Question:   strings.TrimSpace(req.Question),
		Resolution: req.Resolution,
		Collateral: token,
		Outcomes:   req.Outcomes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: upsert %s: %w", addr, err)
	}

	if req.Account != "" && req.Holdings != nil {
		account, err := NormaliseAddress(req.Account)
		if err != nil {
			return domain.Market{}, fmt.Errorf("market_service: holdings account: %w", err)
		}
		if err := s.markets.SetHoldings(ctx, addr, account, req.Holdings); err != nil {
			return domain.Market{}, fmt.Errorf("market_service: holdings %s: %w", addr, err)
		}
	}

	if err := s.cache.Invalidate(ctx, addr); err != nil {
		// Non-fatal: the entry expires on its own.
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market", addr),
			slog.String("error", err.Error()),
		)
	}

	if err := s.audit.Log(ctx, "market.sync", map[string]any{
		"market":     addr,
		"collateral": token.Symbol,
		"outcomes":   len(m.Outcomes),
	}); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("market", addr),
			slog.String("error", err.Error()),
		)
	}

	if payload, err := json.Marshal(m); err == nil {
		if pubErr := s.bus.Publish(ctx, domain.MarketChannel(addr), payload); pubErr != nil {
			s.logger.WarnContext(ctx, "market_service: publish failed",
				slog.String("market", addr),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market_service: synced market",
		slog.String("market", addr),
		slog.String("collateral", token.Symbol),
		slog.Int("outcomes", len(m.Outcomes)),
	)
	return m, nil
}

func validateOutcomes(outcomes []domain.Outcome) error {
	if len(outcomes) < 2 {
		return fmt.Errorf("%w: need at least two outcomes, got %d", domain.ErrInvalidMarket, len(outcomes))
	}
	seen := make(map[int]bool, len(outcomes))
	for _, o := range outcomes {
		if o.Name == "" {
			return fmt.Errorf("%w: outcome %d has no name", domain.ErrInvalidMarket, o.Index)
		}
		if seen[o.Index] {
			return fmt.Errorf("%w: duplicate outcome index %d", domain.ErrInvalidMarket, o.Index)
		}
		seen[o.Index] = true
		if o.Probability < 0 || o.Probability > 1 {
			return fmt.Errorf("%w: outcome %d probability %v outside [0,1]", domain.ErrInvalidMarket, o.Index, o.Probability)
		}
	}
	return nil
}

// GetMarket retrieves a market by address, checking the cache first and
// falling back to the persistent store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, address string) (domain.Market, error) {
	addr, err := NormaliseAddress(address)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get: %w", err)
	}

	m, err := s.cache.Get(ctx, addr)
	if err == nil {
		s.metrics.CacheLookup("market", true)
		return m, nil
	}
	s.metrics.CacheLookup("market", false)

	m, err = s.markets.GetByAddress(ctx, addr)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", addr, err)
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market", addr),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// List returns stored markets.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the total number of stored markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// MarketMakerData reads the pool figures of m from the chain and combines
// them with the outcome shares recorded for account. An empty account yields
// zero user figures. The user's funding is their share of the pool funding
// in proportion to their pool shares.
func (s *MarketService) MarketMakerData(ctx context.Context, m domain.Market, account string) (domain.MarketMakerData, error) {
	mm := s.contracts.BuildMarketMaker(m.Address)

	funding, err := mm.Funding(ctx)
	if err != nil {
		return domain.MarketMakerData{}, fmt.Errorf("market_service: funding of %s: %w", m.Address, err)
	}
	total, err := mm.TotalPoolShares(ctx)
	if err != nil {
		return domain.MarketMakerData{}, fmt.Errorf("market_service: pool shares of %s: %w", m.Address, err)
	}

	userShares := amount.Zero()
	holdings := map[int]*big.Int{}
	if account != "" {
		if userShares, err = mm.PoolShares(ctx, account); err != nil {
			return domain.MarketMakerData{}, fmt.Errorf("market_service: pool shares of %s: %w", account, err)
		}
		if holdings, err = s.markets.Holdings(ctx, m.Address, strings.ToLower(account)); err != nil {
			return domain.MarketMakerData{}, fmt.Errorf("market_service: holdings: %w", err)
		}
	}

	userFunding := amount.Zero()
	if !amount.IsZero(total) {
		userFunding.Mul(funding, userShares)
		userFunding.Quo(userFunding, total)
	}

	balances := make([]domain.BalanceItem, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		shares := amount.Copy(holdings[o.Index])
		balances = append(balances, domain.BalanceItem{
			OutcomeName:  o.Name,
			Probability:  o.Probability,
			CurrentPrice: o.CurrentPrice,
			Shares:       shares,
			// Each winning share redeems one unit of collateral.
			Payout: amount.Copy(shares),
		})
	}

	return domain.MarketMakerData{
		Balances:               balances,
		TotalPoolShares:        amount.Copy(total),
		UserPoolShares:         amount.Copy(userShares),
		MarketMakerFunding:     amount.Copy(funding),
		MarketMakerUserFunding: userFunding,
	}, nil
}
