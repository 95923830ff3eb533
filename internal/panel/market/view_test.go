package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/panel/fund"
)

const addr = "0xabc0000000000000000000000000000000000001"

func props(account string, shares ...int64) Props {
	names := []string{"Yes", "No"}
	var balances []domain.BalanceItem
	for i, name := range names {
		s := big.NewInt(0)
		if i < len(shares) {
			s = big.NewInt(shares[i])
		}
		balances = append(balances, domain.BalanceItem{
			OutcomeName: name,
			Probability: []float64{0.7, 0.3}[i],
			Shares:      s,
			Payout:      s,
		})
	}
	return Props{
		Account:            account,
		Collateral:         domain.Token{Symbol: "DAI", Decimals: 0},
		MarketMakerData:    domain.MarketMakerData{Balances: balances},
		Status:             domain.StatusReady,
		MarketMakerAddress: addr,
	}
}

func TestUserHasShares(t *testing.T) {
	assert.False(t, New(props("0x1"), Features{}).UserHasShares())
	assert.False(t, New(props("0x1", 0, 0), Features{}).UserHasShares())
	assert.True(t, New(props("0x1", 0, 5), Features{}).UserHasShares())
}

func TestDisabledColumns(t *testing.T) {
	without := New(props("0x1"), Features{})
	assert.Equal(t, []domain.OutcomeTableValue{domain.OutcomeTablePayout, domain.OutcomeTableShares}, without.DisabledColumns())
	assert.False(t, without.Render().Table.Has(domain.OutcomeTableShares))

	with := New(props("0x1", 3), Features{})
	assert.Equal(t, []domain.OutcomeTableValue{domain.OutcomeTablePayout}, with.DisabledColumns())
	assert.True(t, with.Render().Table.Has(domain.OutcomeTableShares))
	assert.False(t, with.Render().Table.Has(domain.OutcomeTablePayout))
}

func TestProbabilities(t *testing.T) {
	p := New(props("0x1"), Features{})
	assert.Equal(t, []float64{0.7, 0.3}, p.Probabilities())

	v := p.Render()
	require.Len(t, v.Table.Rows, 2)
	assert.Equal(t, "70.00%", v.Table.Rows[0].Cells[1].Value)
	assert.False(t, v.Table.DisplayRadioSelection)
}

func TestRenderButtons(t *testing.T) {
	t.Run("disconnected", func(t *testing.T) {
		v := New(props(""), Features{}).Render()
		assert.Empty(t, v.Buttons)
		assert.Equal(t, "Purchase Outcome", v.Details.Title)
		assert.Equal(t, "Pool Information", v.Details.ToggleTitle)
	})

	t.Run("connected without shares", func(t *testing.T) {
		v := New(props("0x1"), Features{}).Render()
		require.Len(t, v.Buttons, 3)
		assert.Equal(t, "pool-liquidity", v.Buttons[0].ID)
		assert.Equal(t, addr+"/pool-liquidity", v.Buttons[0].Route)
		assert.Equal(t, "sell", v.Buttons[1].ID)
		assert.True(t, v.Buttons[1].Disabled)
		assert.Equal(t, addr+"/buy", v.Buttons[2].Route)
		for _, b := range v.Buttons {
			assert.Equal(t, fund.ButtonKindSecondary, b.Kind, b.ID)
		}
		assert.Nil(t, v.Comments)
	})

	t.Run("comments feature", func(t *testing.T) {
		v := New(props("0x1", 1), Features{Comments: true}).Render()
		require.Len(t, v.Buttons, 2)
		assert.Equal(t, "sell", v.Buttons[0].ID)
		assert.False(t, v.Buttons[0].Disabled)
		require.NotNil(t, v.Comments)
		assert.Equal(t, addr, v.Comments.ThreadID)
	})
}

func TestNavigate(t *testing.T) {
	_, err := New(props(""), Features{}).Navigate(ActionBuy)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	p := New(props("0x1"), Features{})
	route, err := p.Navigate(ActionBuy)
	require.NoError(t, err)
	assert.Equal(t, addr+"/buy", route)

	_, err = p.Navigate(ActionSell)
	assert.ErrorIs(t, err, domain.ErrActionDisabled)

	route, err = New(props("0x1", 2), Features{}).Navigate(ActionSell)
	require.NoError(t, err)
	assert.Equal(t, addr+"/sell", route)

	_, err = New(props("0x1"), Features{Comments: true}).Navigate(ActionPoolLiquidity)
	assert.ErrorIs(t, err, domain.ErrActionDisabled)

	_, err = p.Navigate(Action("trade"))
	assert.ErrorIs(t, err, domain.ErrActionDisabled)
}

func TestLoadingOverlay(t *testing.T) {
	pr := props("0x1")
	pr.Status = domain.StatusLoading
	v := New(pr, Features{}).Render()
	require.NotNil(t, v.Loading)
	assert.Equal(t, domain.StatusLoading, v.Status)

	assert.Nil(t, New(props("0x1"), Features{}).Render().Loading)
}
