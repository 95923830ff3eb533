// Package market implements the market view panel: outcome probabilities
// and the navigation to the buy, sell and pool-liquidity flows.
package market

import (
	"fmt"

	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/panel/fund"
	"github.com/alanyoungcy/marketfund/internal/panel/outcome"
)

// Action names a navigation button.
type Action string

const (
	ActionPoolLiquidity Action = "pool-liquidity"
	ActionSell          Action = "sell"
	ActionBuy           Action = "buy"
)

// Features are build-time switches for the panel.
type Features struct {
	// Comments shows the discussion widget and hides pool liquidity.
	Comments bool
}

// Props is everything the panel renders from.
type Props struct {
	Account            string
	Collateral         domain.Token
	MarketMakerData    domain.MarketMakerData
	Status             domain.Status
	MarketMakerAddress string
	Question           string
}

// Details is the header block of the panel.
type Details struct {
	Address     string `json:"address"`
	Question    string `json:"question,omitempty"`
	Title       string `json:"title"`
	ToggleTitle string `json:"toggle_title"`
}

// Comments is the discussion widget.
type Comments struct {
	ThreadID string `json:"thread_id"`
}

// View is the render model of the market view panel.
type View struct {
	Details  Details       `json:"details"`
	Table    outcome.Table `json:"table"`
	Buttons  []fund.Button `json:"buttons,omitempty"`
	Comments *Comments     `json:"comments,omitempty"`
	Status   domain.Status `json:"status"`
	Loading  *fund.Overlay `json:"loading,omitempty"`
}

// Panel derives the market view from its props. It holds no mutable state.
type Panel struct {
	props    Props
	features Features
}

// New creates a panel.
func New(props Props, features Features) *Panel {
	return &Panel{props: props, features: features}
}

// Connected reports whether a wallet is connected.
func (p *Panel) Connected() bool { return p.props.Account != "" }

// UserHasShares reports whether the account holds shares of any outcome.
func (p *Panel) UserHasShares() bool {
	for _, b := range p.props.MarketMakerData.Balances {
		if b.HasShares() {
			return true
		}
	}
	return false
}

// Probabilities returns the outcome probabilities in outcome order.
func (p *Panel) Probabilities() []float64 {
	balances := p.props.MarketMakerData.Balances
	out := make([]float64, len(balances))
	for i, b := range balances {
		out[i] = b.Probability
	}
	return out
}

// DisabledColumns returns the outcome table columns hidden by the panel.
func (p *Panel) DisabledColumns() []domain.OutcomeTableValue {
	cols := []domain.OutcomeTableValue{domain.OutcomeTablePayout}
	if !p.UserHasShares() {
		cols = append(cols, domain.OutcomeTableShares)
	}
	return cols
}

// Route returns the sub-route of action for this market.
func (p *Panel) Route(action Action) string {
	return p.props.MarketMakerAddress + "/" + string(action)
}

// Navigate returns the route of action if its button is available.
func (p *Panel) Navigate(action Action) (string, error) {
	if !p.Connected() {
		return "", domain.ErrNotConnected
	}
	for _, b := range p.buttons() {
		if b.ID != string(action) {
			continue
		}
		if b.Disabled {
			return "", fmt.Errorf("market: %s: %w", action, domain.ErrActionDisabled)
		}
		return b.Route, nil
	}
	return "", fmt.Errorf("market: %s: %w", action, domain.ErrActionDisabled)
}

func (p *Panel) buttons() []fund.Button {
	var out []fund.Button
	if !p.features.Comments {
		out = append(out, fund.Button{
			ID:    string(ActionPoolLiquidity),
			Label: "Pool Liquidity",
			Kind:  fund.ButtonKindSecondary,
			Route: p.Route(ActionPoolLiquidity),
		})
	}
	out = append(out,
		fund.Button{
			ID:       string(ActionSell),
			Label:    "Sell",
			Kind:     fund.ButtonKindSecondary,
			Disabled: !p.UserHasShares(),
			Route:    p.Route(ActionSell),
		},
		fund.Button{
			ID:    string(ActionBuy),
			Label: "Buy",
			Kind:  fund.ButtonKindSecondary,
			Route: p.Route(ActionBuy),
		},
	)
	return out
}

// Render builds the render model.
func (p *Panel) Render() View {
	v := View{
		Details: Details{
			Address:     p.props.MarketMakerAddress,
			Question:    p.props.Question,
			Title:       "Purchase Outcome",
			ToggleTitle: "Pool Information",
		},
		Table: outcome.Build(outcome.Props{
			Balances:        p.props.MarketMakerData.Balances,
			Collateral:      p.props.Collateral,
			DisabledColumns: p.DisabledColumns(),
			Probabilities:   p.Probabilities(),
		}),
		Status: p.props.Status,
	}
	if p.Connected() {
		v.Buttons = p.buttons()
	}
	if p.features.Comments {
		v.Comments = &Comments{ThreadID: p.props.MarketMakerAddress}
	}
	if p.props.Status == domain.StatusLoading {
		v.Loading = &fund.Overlay{Message: "Loading..."}
	}
	return v
}
