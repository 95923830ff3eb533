// Package fund implements the funding panel: the form that lets the
// connected account add liquidity to, or remove its liquidity from, a market
// maker. The panel owns ephemeral form state and delegates every chain
// interaction to the injected contract services.
package fund

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketfund/internal/amount"
	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/panel/field"
)

// InsufficientBalanceMessage is shown when the entered amount exceeds the
// fetched collateral balance.
const InsufficientBalanceMessage = "You don't have enough collateral in your balance."

// Props is the market data the panel is rendered from.
type Props struct {
	MarketMakerAddress     string
	Question               string
	Resolution             *time.Time
	TotalPoolShares        *big.Int
	UserPoolShares         *big.Int
	MarketMakerFunding     *big.Int
	MarketMakerUserFunding *big.Int
	Balances               []domain.BalanceItem
	Collateral             domain.Token
}

// Observer is notified of every status transition of a funding action.
type Observer interface {
	StatusChanged(ctx context.Context, ev domain.StatusEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev domain.StatusEvent)

// StatusChanged calls f.
func (f ObserverFunc) StatusChanged(ctx context.Context, ev domain.StatusEvent) { f(ctx, ev) }

// Option customises a Panel.
type Option func(*Panel)

// WithObserver registers an observer for status transitions.
func WithObserver(o Observer) Option {
	return func(p *Panel) { p.observer = o }
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Panel) { p.now = now }
}

// Panel is the funding panel state machine. It is safe for concurrent use;
// actions release the lock while waiting on the chain so the panel can be
// rendered in its loading state.
type Panel struct {
	mu          sync.Mutex
	props       Props
	conn        domain.Connection
	contracts   domain.Contracts
	marketMaker domain.MarketMakerService

	amount     *field.BigNumber
	inputError string
	balance    *big.Int
	status     domain.Status
	message    string

	observer Observer
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a panel in the Ready state with a zero amount and zero fetched
// balance.
func New(props Props, conn domain.Connection, contracts domain.Contracts, logger *slog.Logger, opts ...Option) *Panel {
	p := &Panel{
		props:       props,
		conn:        conn,
		contracts:   contracts,
		marketMaker: contracts.BuildMarketMaker(props.MarketMakerAddress),
		amount:      field.NewBigNumber("amount", props.Collateral.Decimals),
		balance:     amount.Zero(),
		status:      domain.StatusReady,
		now:         time.Now,
		logger: logger.With(
			slog.String("component", "market_fund"),
			slog.String("market", props.MarketMakerAddress),
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetProps replaces the market data. Form state survives unless the
// collateral precision changed, in which case the amount is reset.
func (p *Panel) SetProps(props Props) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if props.Collateral.Decimals != p.props.Collateral.Decimals {
		p.amount = field.NewBigNumber("amount", props.Collateral.Decimals)
		p.inputError = ""
	}
	p.props = props
}

// Props returns the current market data.
func (p *Panel) Props() Props {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props
}

// Status returns the action status.
func (p *Panel) Status() domain.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Message returns the status message of the last started action.
func (p *Panel) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

// Amount returns the entered amount.
func (p *Panel) Amount() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amount.Value()
}

// CollateralBalance returns the last fetched collateral balance.
func (p *Panel) CollateralBalance() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return amount.Copy(p.balance)
}

// SetAmount replaces the entered amount and clears any input error.
func (p *Panel) SetAmount(v *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.amount.Set(v)
	p.inputError = ""
}

// SetAmountText parses text with the collateral decimals. Invalid text
// leaves the amount unchanged and is reported as a field error.
func (p *Panel) SetAmountText(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.amount.SetText(text); err != nil {
		p.inputError = fmt.Sprintf("Invalid amount for %d decimals", p.props.Collateral.Decimals)
		return err
	}
	p.inputError = ""
	return nil
}

// UseMax sets the amount to the fetched collateral balance.
func (p *Panel) UseMax() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.amount.Set(p.balance)
	p.inputError = ""
}

// RefreshBalance fetches the connected account's collateral balance. On
// failure the previous balance is kept.
func (p *Panel) RefreshBalance(ctx context.Context) {
	account := p.conn.Account()
	if account == "" {
		return
	}
	p.mu.Lock()
	collateral := p.props.Collateral.Address
	p.mu.Unlock()

	bal, err := p.contracts.BuildERC20(collateral).GetCollateral(ctx, account)
	if err != nil {
		p.logger.WarnContext(ctx, "fund: fetch collateral balance failed",
			slog.String("account", account),
			slog.String("error", err.Error()),
		)
		return
	}

	p.mu.Lock()
	p.balance = amount.Copy(bal)
	p.mu.Unlock()
}

// FundingPercentage is the account's share of the total funding, or nil when
// the market maker has no funding.
func (p *Panel) FundingPercentage() *float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return amount.Percentage(p.props.MarketMakerUserFunding, p.props.MarketMakerFunding)
}

// PoolSharesPercentage is the account's share of the pool, or nil when no
// pool shares exist.
func (p *Panel) PoolSharesPercentage() *float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return amount.Percentage(p.props.UserPoolShares, p.props.TotalPoolShares)
}

// AddDisabled reports whether "Add funding" cannot be triggered.
func (p *Panel) AddDisabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addDisabledLocked()
}

// RemoveDisabled reports whether "Remove funding" cannot be triggered.
func (p *Panel) RemoveDisabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeDisabledLocked()
}

// FundingError returns the inline validation message for the amount field.
func (p *Panel) FundingError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fundingErrorLocked()
}

func (p *Panel) exceedsBalanceLocked() bool {
	return p.amount.Value().Cmp(p.balance) > 0
}

func (p *Panel) amountInvalidLocked() bool {
	return amount.IsZero(p.amount.Value()) || p.exceedsBalanceLocked()
}

func (p *Panel) addDisabledLocked() bool {
	return p.status == domain.StatusLoading || p.conn.Account() == "" || p.amountInvalidLocked()
}

func (p *Panel) removeDisabledLocked() bool {
	return p.status == domain.StatusLoading || p.conn.Account() == "" ||
		amount.IsZero(p.props.MarketMakerUserFunding) || amount.IsZero(p.props.UserPoolShares)
}

func (p *Panel) fundingErrorLocked() string {
	if p.inputError != "" {
		return p.inputError
	}
	if p.exceedsBalanceLocked() {
		return InsufficientBalanceMessage
	}
	return ""
}

// AddFunding approves the entered amount of collateral for the market maker
// and adds it as funding. Chain failures move the panel to the Error status
// and are logged; they are not returned. domain.ErrActionDisabled is
// returned, without any state change, when the action is disabled.
func (p *Panel) AddFunding(ctx context.Context) error {
	p.mu.Lock()
	if p.addDisabledLocked() {
		p.mu.Unlock()
		return domain.ErrActionDisabled
	}
	amt := p.amount.Value()
	ev := p.beginLocked(domain.FundingAdd, amt, fmt.Sprintf("Add funding amount: %s %s ...",
		amount.Format(amt, p.props.Collateral.Decimals), p.props.Collateral.Symbol))
	p.mu.Unlock()
	p.emit(ctx, ev)

	err := p.addFunding(ctx, amt)
	if err != nil {
		p.logger.ErrorContext(ctx, "fund: error trying to add funding",
			slog.String("action_id", ev.ActionID),
			slog.String("amount", amt.String()),
			slog.String("error", err.Error()),
		)
	}
	p.finish(ctx, ev, err)
	return nil
}

func (p *Panel) addFunding(ctx context.Context, amt *big.Int) error {
	collateralAddress, err := p.marketMaker.GetCollateralToken(ctx)
	if err != nil {
		return fmt.Errorf("get collateral token: %w", err)
	}
	if err := p.contracts.BuildERC20(collateralAddress).Approve(ctx, p.marketMaker.Address(), amt); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if err := p.marketMaker.AddFunding(ctx, amt); err != nil {
		return fmt.Errorf("add funding: %w", err)
	}
	return nil
}

// RemoveFunding withdraws all of the account's funding by burning every pool
// share it holds. The message and the recorded amount are the collateral
// value of those shares. Error handling matches AddFunding.
func (p *Panel) RemoveFunding(ctx context.Context) error {
	p.mu.Lock()
	if p.removeDisabledLocked() {
		p.mu.Unlock()
		return domain.ErrActionDisabled
	}
	amt := amount.Copy(p.props.MarketMakerUserFunding)
	shares := amount.Copy(p.props.UserPoolShares)
	ev := p.beginLocked(domain.FundingRemove, amt, fmt.Sprintf("Remove all funding amount: %s ...",
		amount.Format(amt, p.props.Collateral.Decimals)))
	p.mu.Unlock()
	p.emit(ctx, ev)

	err := p.marketMaker.RemoveFunding(ctx, shares)
	if err != nil {
		err = fmt.Errorf("remove funding: %w", err)
		p.logger.ErrorContext(ctx, "fund: error trying to remove funding",
			slog.String("action_id", ev.ActionID),
			slog.String("shares", shares.String()),
			slog.String("error", err.Error()),
		)
	}
	p.finish(ctx, ev, err)
	return nil
}

// beginLocked moves the panel to Loading and returns the matching event.
func (p *Panel) beginLocked(kind domain.FundingKind, amt *big.Int, message string) domain.StatusEvent {
	p.status = domain.StatusLoading
	p.message = message
	return domain.StatusEvent{
		ActionID: uuid.NewString(),
		Market:   p.props.MarketMakerAddress,
		Account:  p.conn.Account(),
		Kind:     kind,
		Amount:   amt,
		Status:   domain.StatusLoading,
		Message:  message,
		At:       p.now().UTC(),
	}
}

// finish moves the panel to Ready or Error depending on err.
func (p *Panel) finish(ctx context.Context, ev domain.StatusEvent, err error) {
	ev.Status = domain.StatusReady
	if err != nil {
		ev.Status = domain.StatusError
		ev.Error = err.Error()
	}
	ev.At = p.now().UTC()

	p.mu.Lock()
	p.status = ev.Status
	p.mu.Unlock()

	p.emit(ctx, ev)
}

func (p *Panel) emit(ctx context.Context, ev domain.StatusEvent) {
	if p.observer != nil {
		p.observer.StatusChanged(ctx, ev)
	}
}
