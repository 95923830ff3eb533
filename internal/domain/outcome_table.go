package domain

// OutcomeTableValue identifies a column of the outcome table.
type OutcomeTableValue string

const (
	OutcomeTableOutcome         OutcomeTableValue = "outcome"
	OutcomeTableProbability     OutcomeTableValue = "probability"
	OutcomeTableCurrentPrice    OutcomeTableValue = "current_price"
	OutcomeTableShares          OutcomeTableValue = "shares"
	OutcomeTablePayout          OutcomeTableValue = "payout"
	OutcomeTablePriceAfterTrade OutcomeTableValue = "price_after_trade"
)

// OutcomeTableColumns lists every column in display order.
var OutcomeTableColumns = []OutcomeTableValue{
	OutcomeTableOutcome,
	OutcomeTableProbability,
	OutcomeTableCurrentPrice,
	OutcomeTableShares,
	OutcomeTablePayout,
	OutcomeTablePriceAfterTrade,
}
