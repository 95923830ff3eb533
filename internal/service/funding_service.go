package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/metrics"
	"github.com/alanyoungcy/marketfund/internal/panel/fund"
)

// refreshTimeout bounds the chain reads made after an action completes.
const refreshTimeout = 30 * time.Second

// FundingOptions tunes funding sessions and actions.
type FundingOptions struct {
	ActionTimeout time.Duration
	LockTTL       time.Duration
	SessionTTL    time.Duration
}

type session struct {
	panel    *fund.Panel
	lastUsed time.Time
	// started receives the action id of each Loading transition.
	started chan string
}

// FundingService keeps one funding panel per market for the connected
// account and runs the panels' actions in the background.
type FundingService struct {
	conn      domain.Connection
	contracts domain.Contracts
	balances  domain.BalanceCache
	markets   *MarketService
	ledger    domain.FundingActionStore
	locks     domain.LockManager
	observer  fund.Observer
	metrics   *metrics.Metrics
	opts      FundingOptions
	base      *slog.Logger
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// NewFundingService creates a FundingService. Collateral balance reads go
// through balances; observer receives every status transition.
func NewFundingService(
	conn domain.Connection,
	contracts domain.Contracts,
	balances domain.BalanceCache,
	markets *MarketService,
	ledger domain.FundingActionStore,
	locks domain.LockManager,
	observer fund.Observer,
	m *metrics.Metrics,
	opts FundingOptions,
	logger *slog.Logger,
) *FundingService {
	return &FundingService{
		conn: conn,
		contracts: &cachedContracts{
			Contracts: contracts,
			balances:  balances,
			metrics:   m,
			logger:    logger,
		},
		balances: balances,
		markets:  markets,
		ledger:   ledger,
		locks:    locks,
		observer: observer,
		metrics:  m,
		opts:     opts,
		base:     logger,
		logger:   logger.With(slog.String("component", "funding_service")),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func propsFor(m domain.Market, data domain.MarketMakerData) fund.Props {
	return fund.Props{
		MarketMakerAddress:     m.Address,
		Question:               m.Question,
		Resolution:             m.Resolution,
		TotalPoolShares:        data.TotalPoolShares,
		UserPoolShares:         data.UserPoolShares,
		MarketMakerFunding:     data.MarketMakerFunding,
		MarketMakerUserFunding: data.MarketMakerUserFunding,
		Balances:               data.Balances,
		Collateral:             m.Collateral,
	}
}

func (s *FundingService) loadProps(ctx context.Context, address string) (fund.Props, error) {
	m, err := s.markets.GetMarket(ctx, address)
	if err != nil {
		return fund.Props{}, err
	}
	data, err := s.markets.MarketMakerData(ctx, m, s.conn.Account())
	if err != nil {
		return fund.Props{}, err
	}
	return propsFor(m, data), nil
}

// session returns the panel session of a market, creating it on first use.
func (s *FundingService) session(ctx context.Context, address string) (*session, error) {
	addr, err := NormaliseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("funding_service: %w", err)
	}

	s.mu.Lock()
	if sess, ok := s.sessions[addr]; ok {
		sess.lastUsed = s.now()
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	props, err := s.loadProps(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("funding_service: open session %s: %w", addr, err)
	}

	sess := &session{started: make(chan string, 1)}
	sess.panel = fund.New(props, s.conn, s.contracts, s.base,
		fund.WithObserver(fund.ObserverFunc(func(ctx context.Context, ev domain.StatusEvent) {
			s.observer.StatusChanged(ctx, ev)
			if ev.Status == domain.StatusLoading {
				select {
				case sess.started <- ev.ActionID:
				default:
				}
			}
		})),
	)

	s.mu.Lock()
	if existing, ok := s.sessions[addr]; ok {
		// Lost a race with a concurrent request.
		existing.lastUsed = s.now()
		s.mu.Unlock()
		return existing, nil
	}
	sess.lastUsed = s.now()
	s.sessions[addr] = sess
	s.metrics.SetSessions(len(s.sessions))
	s.mu.Unlock()

	sess.panel.RefreshBalance(ctx)
	s.logger.InfoContext(ctx, "funding_service: session opened", slog.String("market", addr))
	return sess, nil
}

// refresh reloads market data and the collateral balance unless an action
// is in flight.
func (s *FundingService) refresh(ctx context.Context, sess *session) error {
	if sess.panel.Status() == domain.StatusLoading {
		return nil
	}
	props, err := s.loadProps(ctx, sess.panel.Props().MarketMakerAddress)
	if err != nil {
		return err
	}
	sess.panel.SetProps(props)
	sess.panel.RefreshBalance(ctx)
	return nil
}

// View returns the current render model of a market's funding panel.
func (s *FundingService) View(ctx context.Context, address string) (fund.View, error) {
	sess, err := s.session(ctx, address)
	if err != nil {
		return fund.View{}, err
	}
	if err := s.refresh(ctx, sess); err != nil {
		return fund.View{}, fmt.Errorf("funding_service: refresh: %w", err)
	}
	return sess.panel.Render(), nil
}

// Status returns the action status of a market's panel, or Ready when no
// session is open.
func (s *FundingService) Status(address string) domain.Status {
	addr, err := NormaliseAddress(address)
	if err != nil {
		return domain.StatusReady
	}
	s.mu.Lock()
	sess, ok := s.sessions[addr]
	s.mu.Unlock()
	if !ok {
		return domain.StatusReady
	}
	return sess.panel.Status()
}

// SetAmount parses text into the amount field. Invalid text is returned as
// domain.ErrInvalidAmount and leaves the amount unchanged.
func (s *FundingService) SetAmount(ctx context.Context, address, text string) (fund.View, error) {
	sess, err := s.session(ctx, address)
	if err != nil {
		return fund.View{}, err
	}
	if err := sess.panel.SetAmountText(text); err != nil {
		return sess.panel.Render(), fmt.Errorf("funding_service: set amount: %w", err)
	}
	return sess.panel.Render(), nil
}

// UseMax refreshes the collateral balance and copies it into the amount.
func (s *FundingService) UseMax(ctx context.Context, address string) (fund.View, error) {
	sess, err := s.session(ctx, address)
	if err != nil {
		return fund.View{}, err
	}
	sess.panel.RefreshBalance(ctx)
	sess.panel.UseMax()
	return sess.panel.Render(), nil
}

// AddFunding starts adding the entered amount as funding and returns the
// action id once the panel is loading. The action keeps running after ctx
// ends, bounded by the action timeout.
func (s *FundingService) AddFunding(ctx context.Context, address string) (string, error) {
	return s.start(ctx, address, domain.FundingAdd)
}

// RemoveFunding starts removing all of the account's funding.
func (s *FundingService) RemoveFunding(ctx context.Context, address string) (string, error) {
	return s.start(ctx, address, domain.FundingRemove)
}

func (s *FundingService) start(ctx context.Context, address string, kind domain.FundingKind) (string, error) {
	sess, err := s.session(ctx, address)
	if err != nil {
		return "", err
	}
	if s.conn.Account() == "" {
		return "", fmt.Errorf("funding_service: %s funding: %w", kind, domain.ErrNotConnected)
	}

	run := sess.panel.AddFunding
	disabled := sess.panel.AddDisabled()
	if kind == domain.FundingRemove {
		run = sess.panel.RemoveFunding
		disabled = sess.panel.RemoveDisabled()
	}
	if disabled {
		return "", fmt.Errorf("funding_service: %s funding: %w", kind, domain.ErrActionDisabled)
	}

	props := sess.panel.Props()
	unlock, err := s.locks.Acquire(ctx, "funding:"+props.MarketMakerAddress, s.opts.LockTTL)
	if err != nil {
		return "", fmt.Errorf("funding_service: %s funding: %w", kind, err)
	}

	select {
	case <-sess.started:
	default:
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ActionTimeout)
	done := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unlock()
		defer cancel()

		err := run(actx)
		if err == nil {
			s.afterAction(ctx, sess, props)
		}
		done <- err
	}()

	select {
	case id := <-sess.started:
		return id, nil
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("funding_service: %s funding: %w", kind, err)
		}
		select {
		case id := <-sess.started:
			return id, nil
		default:
			return "", nil
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// afterAction drops the cached balance and reloads the panel so the totals
// reflect the completed transaction.
func (s *FundingService) afterAction(ctx context.Context, sess *session, props fund.Props) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()

	if account := s.conn.Account(); account != "" {
		if err := s.balances.InvalidateBalance(ctx, props.Collateral.Address, account); err != nil {
			s.logger.WarnContext(ctx, "funding_service: invalidate balance failed",
				slog.String("market", props.MarketMakerAddress),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.refresh(ctx, sess); err != nil {
		s.logger.WarnContext(ctx, "funding_service: refresh after action failed",
			slog.String("market", props.MarketMakerAddress),
			slog.String("error", err.Error()),
		)
	}
}

// History lists the ledger of a market, newest first.
func (s *FundingService) History(ctx context.Context, address string, opts domain.ListOpts) ([]domain.FundingAction, error) {
	addr, err := NormaliseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("funding_service: history: %w", err)
	}
	actions, err := s.ledger.ListByMarket(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("funding_service: history %s: %w", addr, err)
	}
	return actions, nil
}

// Sessions returns the number of open sessions.
func (s *FundingService) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Evict closes sessions idle for longer than the session TTL. Sessions with
// an action in flight are kept.
func (s *FundingService) Evict() int {
	cutoff := s.now().Add(-s.opts.SessionTTL)
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for addr, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) && sess.panel.Status() != domain.StatusLoading {
			delete(s.sessions, addr)
			evicted++
		}
	}
	s.metrics.SetSessions(len(s.sessions))
	return evicted
}

// RunEvictor evicts idle sessions periodically until ctx is cancelled.
func (s *FundingService) RunEvictor(ctx context.Context) error {
	interval := s.opts.SessionTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Evict(); n > 0 {
				s.logger.InfoContext(ctx, "funding_service: evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Wait blocks until every running action has finished or ctx is done.
func (s *FundingService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
