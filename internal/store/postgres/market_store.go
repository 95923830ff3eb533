package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `address, question, resolution,
	collateral_address, collateral_symbol, collateral_decimals,
	outcomes, created_at, updated_at`

// Upsert inserts or updates a market keyed by its market-maker address.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes: %w", err)
	}

	const query = `
		INSERT INTO markets (
			address, question, resolution,
			collateral_address, collateral_symbol, collateral_decimals,
			outcomes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (address) DO UPDATE SET
			question            = EXCLUDED.question,
			resolution          = EXCLUDED.resolution,
			collateral_address  = EXCLUDED.collateral_address,
			collateral_symbol   = EXCLUDED.collateral_symbol,
			collateral_decimals = EXCLUDED.collateral_decimals,
			outcomes            = EXCLUDED.outcomes,
			updated_at          = NOW()`

	_, err = s.pool.Exec(ctx, query,
		m.Address, m.Question, m.Resolution,
		m.Collateral.Address, m.Collateral.Symbol, int16(m.Collateral.Decimals),
		outcomes,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.Address, err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m        domain.Market
		decimals int16
		outcomes []byte
	)
	err := row.Scan(
		&m.Address, &m.Question, &m.Resolution,
		&m.Collateral.Address, &m.Collateral.Symbol, &decimals,
		&outcomes, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Collateral.Decimals = uint8(decimals)
	if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal outcomes: %w", err)
	}
	return m, nil
}

// GetByAddress retrieves a market by its market-maker address.
func (s *MarketStore) GetByAddress(ctx context.Context, address string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE address = $1`, address)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", address, err)
	}
	return m, nil
}

// List returns markets, newest first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query, args := listQuery(`SELECT `+marketCols+` FROM markets WHERE 1=1`, nil, "created_at", "DESC", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// SetHoldings replaces the outcome shares held by account in market.
func (s *MarketStore) SetHoldings(ctx context.Context, market, account string, shares map[int]*big.Int) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM holdings WHERE market = $1 AND account = $2`, market, account,
		); err != nil {
			return err
		}
		if len(shares) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for idx, v := range shares {
			batch.Queue(`
				INSERT INTO holdings (market, account, outcome_index, shares, updated_at)
				VALUES ($1, $2, $3, $4::numeric, NOW())`,
				market, account, idx, numericText(v))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: set holdings %s/%s: %w", market, account, err)
	}
	return nil
}

// Holdings returns the outcome shares held by account in market, keyed by
// outcome index. Outcomes without a row are absent.
func (s *MarketStore) Holdings(ctx context.Context, market, account string) (map[int]*big.Int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT outcome_index, shares::text FROM holdings
		WHERE market = $1 AND account = $2`, market, account)
	if err != nil {
		return nil, fmt.Errorf("postgres: holdings %s/%s: %w", market, account, err)
	}
	defer rows.Close()

	out := map[int]*big.Int{}
	for rows.Next() {
		var (
			idx    int
			shares string
		)
		if err := rows.Scan(&idx, &shares); err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		v, err := parseNumeric(shares)
		if err != nil {
			return nil, err
		}
		out[idx] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: holdings rows: %w", err)
	}
	return out, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
