package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata and per-account outcome holdings.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByAddress(ctx context.Context, address string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
	SetHoldings(ctx context.Context, market, account string, shares map[int]*big.Int) error
	Holdings(ctx context.Context, market, account string) (map[int]*big.Int, error)
}

// FundingActionStore persists the funding ledger.
type FundingActionStore interface {
	Create(ctx context.Context, action FundingAction) error
	Complete(ctx context.Context, id string, status FundingActionStatus, errText string) error
	ListByMarket(ctx context.Context, market string, opts ListOpts) ([]FundingAction, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]FundingAction, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
