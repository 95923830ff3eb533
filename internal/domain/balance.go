package domain

import "math/big"

// BalanceItem is one outcome row of a market as seen by the connected
// account.
type BalanceItem struct {
	OutcomeName  string   `json:"outcome_name"`
	Probability  float64  `json:"probability"`   // 0..1
	CurrentPrice float64  `json:"current_price"` // collateral per share
	Shares       *big.Int `json:"shares"`
	Payout       *big.Int `json:"payout"`
}

// HasShares reports whether the item carries a non-zero share quantity.
func (b BalanceItem) HasShares() bool {
	return b.Shares != nil && b.Shares.Sign() != 0
}

// MarketMakerData aggregates the balances and funding figures of a market
// maker for one account. All amounts are scaled by the collateral decimals.
type MarketMakerData struct {
	Balances               []BalanceItem `json:"balances"`
	TotalPoolShares        *big.Int      `json:"total_pool_shares"`
	UserPoolShares         *big.Int      `json:"user_pool_shares"`
	MarketMakerFunding     *big.Int      `json:"market_maker_funding"`
	MarketMakerUserFunding *big.Int      `json:"market_maker_user_funding"`
}
