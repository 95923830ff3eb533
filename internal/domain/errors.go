package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLockHeld       = errors.New("lock already held")
	ErrNotConnected   = errors.New("wallet not connected")
	ErrActionDisabled = errors.New("action disabled")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidField   = errors.New("invalid field configuration")
	ErrInvalidMarket  = errors.New("invalid market")
	ErrTxReverted     = errors.New("transaction reverted")
)
