package domain

import (
	"math/big"
	"time"
)

// FundingKind distinguishes the two funding actions.
type FundingKind string

const (
	FundingAdd    FundingKind = "add"
	FundingRemove FundingKind = "remove"
)

// FundingActionStatus tracks a ledger row.
type FundingActionStatus string

const (
	FundingPending   FundingActionStatus = "pending"
	FundingSucceeded FundingActionStatus = "succeeded"
	FundingFailed    FundingActionStatus = "failed"
)

// FundingAction is the ledger record of one add/remove funding attempt.
type FundingAction struct {
	ID          string              `json:"id"`
	Market      string              `json:"market"`
	Account     string              `json:"account"`
	Kind        FundingKind         `json:"kind"`
	Amount      *big.Int            `json:"amount"`
	Status      FundingActionStatus `json:"status"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// StatusEvent is emitted on every panel status transition.
type StatusEvent struct {
	ActionID string      `json:"action_id"`
	Market   string      `json:"market"`
	Account  string      `json:"account"`
	Kind     FundingKind `json:"kind"`
	Amount   *big.Int    `json:"amount"`
	Status   Status      `json:"status"`
	Message  string      `json:"message"`
	Error    string      `json:"error,omitempty"`
	At       time.Time   `json:"at"`
}
