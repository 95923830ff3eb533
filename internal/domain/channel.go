package domain

import "strings"

// Bus channel prefixes.
const (
	FundingChannelPrefix = "ch:funding:"
	MarketChannelPrefix  = "ch:market:"
)

// FundingChannel is the bus channel carrying the status events of a market.
func FundingChannel(market string) string {
	return FundingChannelPrefix + strings.ToLower(market)
}

// MarketChannel is the bus channel carrying metadata updates of a market.
func MarketChannel(market string) string {
	return MarketChannelPrefix + strings.ToLower(market)
}
