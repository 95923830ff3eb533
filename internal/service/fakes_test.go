package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memMarkets struct {
	mu       sync.Mutex
	markets  map[string]domain.Market
	holdings map[string]map[int]*big.Int
	gets     int
}

func newMemMarkets() *memMarkets {
	return &memMarkets{markets: map[string]domain.Market{}, holdings: map[string]map[int]*big.Int{}}
}

func (s *memMarkets) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.Address] = m
	return nil
}

func (s *memMarkets) GetByAddress(_ context.Context, address string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	m, ok := s.markets[address]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarkets) List(context.Context, domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *memMarkets) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

func (s *memMarkets) SetHoldings(_ context.Context, market, account string, shares map[int]*big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings[market+"/"+account] = shares
	return nil
}

func (s *memMarkets) Holdings(_ context.Context, market, account string) (map[int]*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.holdings[market+"/"+account]; ok {
		return h, nil
	}
	return map[int]*big.Int{}, nil
}

type memCache struct {
	mu          sync.Mutex
	markets     map[string]domain.Market
	balances    map[string]*big.Int
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{markets: map[string]domain.Market{}, balances: map[string]*big.Int{}}
}

func (c *memCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[m.Address] = m
	return nil
}

func (c *memCache) Get(_ context.Context, address string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markets[address]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *memCache) Invalidate(_ context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markets, address)
	c.invalidated = append(c.invalidated, address)
	return nil
}

func (c *memCache) SetBalance(_ context.Context, token, account string, v *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[token+"/"+account] = new(big.Int).Set(v)
	return nil
}

func (c *memCache) GetBalance(_ context.Context, token, account string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.balances[token+"/"+account]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return new(big.Int).Set(v), nil
}

func (c *memCache) InvalidateBalance(_ context.Context, token, account string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.balances, token+"/"+account)
	return nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *memAudit) Events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

type memBus struct {
	mu        sync.Mutex
	published []domain.Message
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, domain.Message{Channel: channel, Payload: payload})
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan domain.Message, error) {
	return make(chan domain.Message), nil
}

func (b *memBus) Messages() []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Message(nil), b.published...)
}

type memLedger struct {
	mu      sync.Mutex
	actions map[string]domain.FundingAction
}

func newMemLedger() *memLedger { return &memLedger{actions: map[string]domain.FundingAction{}} }

func (l *memLedger) Create(_ context.Context, a domain.FundingAction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions[a.ID] = a
	return nil
}

func (l *memLedger) Complete(_ context.Context, id string, status domain.FundingActionStatus, errText string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.actions[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	a.Status, a.Error, a.CompletedAt = status, errText, &now
	l.actions[id] = a
	return nil
}

func (l *memLedger) ListByMarket(_ context.Context, market string, _ domain.ListOpts) ([]domain.FundingAction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.FundingAction
	for _, a := range l.actions {
		if a.Market == market {
			out = append(out, a)
		}
	}
	return out, nil
}

func (l *memLedger) ListBefore(context.Context, time.Time, int) ([]domain.FundingAction, error) {
	return nil, nil
}

func (l *memLedger) DeleteByIDs(context.Context, []string) (int64, error) { return 0, nil }

func (l *memLedger) Get(id string) (domain.FundingAction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.actions[id]
	return a, ok
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks { return &memLocks{held: map[string]bool{}} }

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, key)
		})
	}, nil
}

func (l *memLocks) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

type sentNotification struct {
	event, title string
}

type memNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *memNotifier) Notify(_ context.Context, event, title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{event: event, title: title})
	return nil
}

func (n *memNotifier) Sent() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

type memArchiver struct {
	before time.Time
	n      int64
	err    error
}

func (a *memArchiver) ArchiveFundingActions(_ context.Context, before time.Time) (int64, error) {
	a.before = before
	return a.n, a.err
}
