package fund

import (
	"github.com/alanyoungcy/marketfund/internal/amount"
	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/panel/field"
	"github.com/alanyoungcy/marketfund/internal/panel/outcome"
)

// ResolutionLayout formats the market resolution date in the title.
const ResolutionLayout = "Jan 2, 2006 3:04 PM"

// Button identifiers used by front ends and the action endpoints.
const (
	ButtonBack   = "back"
	ButtonRemove = "remove_funding"
	ButtonAdd    = "add_funding"
)

// ButtonKind selects the visual style of a button.
type ButtonKind string

const (
	ButtonKindLink      ButtonKind = "link"
	ButtonKindPrimary   ButtonKind = "primary"
	ButtonKindSecondary ButtonKind = "secondary"
)

// TotalRow is one line of the totals table.
type TotalRow struct {
	Label      string `json:"label"`
	Value      string `json:"value"`
	Percentage string `json:"percentage,omitempty"`
	Unit       string `json:"unit,omitempty"`
	// ShowPercentage is true for rows that carry a percentage column even
	// when its value is unknown.
	ShowPercentage bool `json:"show_percentage"`
}

// AmountField is the amount form row.
type AmountField struct {
	Title   string       `json:"title"`
	Input   field.Config `json:"input"`
	Balance string       `json:"balance"`
	Symbol  string       `json:"symbol"`
	Error   string       `json:"error,omitempty"`
}

// Button is a rendered action.
type Button struct {
	ID       string     `json:"id"`
	Label    string     `json:"label"`
	Kind     ButtonKind `json:"kind"`
	Disabled bool       `json:"disabled"`
	Route    string     `json:"route,omitempty"`
}

// Overlay is the full-screen loading indicator.
type Overlay struct {
	Message string `json:"message"`
}

// View is the render model of the funding panel.
type View struct {
	Title    string        `json:"title"`
	Subtitle string        `json:"subtitle"`
	Totals   []TotalRow    `json:"totals"`
	Balance  outcome.Table `json:"balance"`
	Amount   AmountField   `json:"amount"`
	Buttons  []Button      `json:"buttons"`
	Status   domain.Status `json:"status"`
	Loading  *Overlay      `json:"loading,omitempty"`
}

// balanceDisabledColumns are hidden in the funding panel's outcome table.
var balanceDisabledColumns = []domain.OutcomeTableValue{
	domain.OutcomeTableCurrentPrice,
	domain.OutcomeTablePayout,
	domain.OutcomeTablePriceAfterTrade,
}

// Render builds the render model from the current state.
func (p *Panel) Render() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	props := p.props
	dec := props.Collateral.Decimals

	v := View{
		Title:  props.Question,
		Status: p.status,
		Totals: []TotalRow{
			{Label: "Total funding", Value: amount.Format(props.MarketMakerFunding, dec)},
			{
				Label:          "Your funding",
				Value:          amount.Format(props.MarketMakerUserFunding, dec),
				Percentage:     amount.FormatPercentage(amount.Percentage(props.MarketMakerUserFunding, props.MarketMakerFunding)),
				ShowPercentage: true,
			},
			{Label: "Total pool shares", Value: amount.Format(props.TotalPoolShares, dec), Unit: "shares"},
			{
				Label:          "Your pool shares",
				Value:          amount.Format(props.UserPoolShares, dec),
				Percentage:     amount.FormatPercentage(amount.Percentage(props.UserPoolShares, props.TotalPoolShares)),
				Unit:           "shares",
				ShowPercentage: true,
			},
		},
		Balance: outcome.Build(outcome.Props{
			Balances:        props.Balances,
			Collateral:      props.Collateral,
			DisabledColumns: balanceDisabledColumns,
		}),
		Amount: AmountField{
			Title:   "Amount",
			Input:   p.amount.Config(props.Collateral.Symbol, p.status == domain.StatusLoading),
			Balance: amount.Format(p.balance, dec),
			Symbol:  props.Collateral.Symbol,
			Error:   p.fundingErrorLocked(),
		},
		Buttons: []Button{
			{ID: ButtonBack, Label: "‹ Back", Kind: ButtonKindLink, Route: "/" + props.MarketMakerAddress},
			{ID: ButtonRemove, Label: "Remove funding", Kind: ButtonKindSecondary, Disabled: p.removeDisabledLocked()},
			{ID: ButtonAdd, Label: "Add funding", Kind: ButtonKindPrimary, Disabled: p.addDisabledLocked()},
		},
	}
	if props.Resolution != nil {
		v.Subtitle = props.Resolution.UTC().Format(ResolutionLayout)
	}
	if p.status == domain.StatusLoading {
		v.Loading = &Overlay{Message: p.message}
	}
	return v
}
