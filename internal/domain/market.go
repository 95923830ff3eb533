package domain

import "time"

// Outcome is the market-wide state of one outcome slot.
type Outcome struct {
	Index        int     `json:"index"`
	Name         string  `json:"name"`
	Probability  float64 `json:"probability"`
	CurrentPrice float64 `json:"current_price"`
}

// Market is the metadata of a prediction market served by a market-maker
// contract. Address is the market-maker contract address and the market's
// identity everywhere in the system.
type Market struct {
	Address    string     `json:"address"`
	Question   string     `json:"question"`
	Resolution *time.Time `json:"resolution,omitempty"`
	Collateral Token      `json:"collateral"`
	Outcomes   []Outcome  `json:"outcomes"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
