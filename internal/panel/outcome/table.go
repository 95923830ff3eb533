// Package outcome builds the outcome table shared by the market panels.
package outcome

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketfund/internal/amount"
	"github.com/alanyoungcy/marketfund/internal/domain"
)

var headers = map[domain.OutcomeTableValue]string{
	domain.OutcomeTableOutcome:         "Outcome",
	domain.OutcomeTableProbability:     "Probability",
	domain.OutcomeTableCurrentPrice:    "Current Price",
	domain.OutcomeTableShares:          "Shares",
	domain.OutcomeTablePayout:          "Payout",
	domain.OutcomeTablePriceAfterTrade: "Price after trade",
}

// Props configures a table.
type Props struct {
	Balances              []domain.BalanceItem
	Collateral            domain.Token
	DisabledColumns       []domain.OutcomeTableValue
	DisplayRadioSelection bool
	// Probabilities overrides the per-balance probability when set.
	Probabilities []float64
	// PricesAfterTrade fills the price-after-trade column when set.
	PricesAfterTrade []float64
	// Selected is the preselected row when radio selection is shown.
	Selected int
}

// Column is a rendered header cell.
type Column struct {
	Key   domain.OutcomeTableValue `json:"key"`
	Title string                   `json:"title"`
}

// Cell is a rendered body cell.
type Cell struct {
	Key   domain.OutcomeTableValue `json:"key"`
	Value string                   `json:"value"`
}

// Row is one outcome.
type Row struct {
	Index    int    `json:"index"`
	Selected bool   `json:"selected,omitempty"`
	Cells    []Cell `json:"cells"`
}

// Table is the render model of the outcome table.
type Table struct {
	Columns               []Column `json:"columns"`
	Rows                  []Row    `json:"rows"`
	DisplayRadioSelection bool     `json:"display_radio_selection"`
}

// Build renders the table for props.
func Build(p Props) Table {
	var cols []Column
	for _, c := range domain.OutcomeTableColumns {
		if slices.Contains(p.DisabledColumns, c) {
			continue
		}
		cols = append(cols, Column{Key: c, Title: headers[c]})
	}

	rows := make([]Row, 0, len(p.Balances))
	for i, b := range p.Balances {
		row := Row{Index: i, Selected: p.DisplayRadioSelection && i == p.Selected}
		for _, c := range cols {
			row.Cells = append(row.Cells, Cell{Key: c.Key, Value: cellValue(p, i, b, c.Key)})
		}
		rows = append(rows, row)
	}

	return Table{Columns: cols, Rows: rows, DisplayRadioSelection: p.DisplayRadioSelection}
}

// Has reports whether the table shows column c.
func (t Table) Has(c domain.OutcomeTableValue) bool {
	for _, col := range t.Columns {
		if col.Key == c {
			return true
		}
	}
	return false
}

func cellValue(p Props, i int, b domain.BalanceItem, c domain.OutcomeTableValue) string {
	switch c {
	case domain.OutcomeTableOutcome:
		return b.OutcomeName
	case domain.OutcomeTableProbability:
		prob := b.Probability
		if i < len(p.Probabilities) {
			prob = p.Probabilities[i]
		}
		return percent(prob)
	case domain.OutcomeTableCurrentPrice:
		return price(b.CurrentPrice, p.Collateral.Symbol)
	case domain.OutcomeTableShares:
		return amount.Format(b.Shares, p.Collateral.Decimals)
	case domain.OutcomeTablePayout:
		return amount.Format(b.Payout, p.Collateral.Decimals) + " " + p.Collateral.Symbol
	case domain.OutcomeTablePriceAfterTrade:
		if i < len(p.PricesAfterTrade) {
			return price(p.PricesAfterTrade[i], p.Collateral.Symbol)
		}
		return "-"
	}
	return ""
}

// percent renders a 0..1 probability as a percentage.
func percent(prob float64) string {
	return decimal.NewFromFloat(prob*100).StringFixed(amount.DisplayPrecision) + "%"
}

func price(v float64, symbol string) string {
	return decimal.NewFromFloat(v).StringFixed(amount.DisplayPrecision) + " " + symbol
}
