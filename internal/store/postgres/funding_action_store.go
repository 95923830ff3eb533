package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// FundingActionStore implements domain.FundingActionStore using PostgreSQL.
type FundingActionStore struct {
	pool *pgxpool.Pool
}

// NewFundingActionStore creates a new FundingActionStore.
func NewFundingActionStore(pool *pgxpool.Pool) *FundingActionStore {
	return &FundingActionStore{pool: pool}
}

const fundingCols = `id::text, market, account, kind, amount::text, status, error, created_at, completed_at`

// Create inserts a ledger row.
func (s *FundingActionStore) Create(ctx context.Context, a domain.FundingAction) error {
	const query = `
		INSERT INTO funding_actions (id, market, account, kind, amount, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.Market, a.Account, string(a.Kind), numericText(a.Amount),
		string(a.Status), a.Error, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create funding action %s: %w", a.ID, err)
	}
	return nil
}

// Complete sets the final status of a ledger row.
func (s *FundingActionStore) Complete(ctx context.Context, id string, status domain.FundingActionStatus, errText string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE funding_actions SET status = $2, error = $3, completed_at = NOW()
		WHERE id = $1`, id, string(status), errText)
	if err != nil {
		return fmt.Errorf("postgres: complete funding action %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanFundingActions(rows pgx.Rows) ([]domain.FundingAction, error) {
	defer rows.Close()
	var out []domain.FundingAction
	for rows.Next() {
		var (
			a            domain.FundingAction
			kind, status string
			amount       string
		)
		if err := rows.Scan(&a.ID, &a.Market, &a.Account, &kind, &amount, &status,
			&a.Error, &a.CreatedAt, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan funding action: %w", err)
		}
		v, err := parseNumeric(amount)
		if err != nil {
			return nil, err
		}
		a.Amount = v
		a.Kind = domain.FundingKind(kind)
		a.Status = domain.FundingActionStatus(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: funding action rows: %w", err)
	}
	return out, nil
}

// ListByMarket returns the ledger rows of market, newest first.
func (s *FundingActionStore) ListByMarket(ctx context.Context, market string, opts domain.ListOpts) ([]domain.FundingAction, error) {
	query, args := listQuery(`SELECT `+fundingCols+` FROM funding_actions WHERE market = $1`,
		[]any{market}, "created_at", "DESC", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list funding actions %s: %w", market, err)
	}
	return scanFundingActions(rows)
}

// ListBefore returns up to limit rows created before the cutoff, oldest
// first.
func (s *FundingActionStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.FundingAction, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+fundingCols+` FROM funding_actions
		WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list funding actions before %s: %w", before.Format(time.RFC3339), err)
	}
	return scanFundingActions(rows)
}

// DeleteByIDs removes ledger rows and returns how many were deleted.
func (s *FundingActionStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM funding_actions WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete funding actions: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.FundingActionStore = (*FundingActionStore)(nil)
