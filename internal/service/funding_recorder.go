package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/metrics"
	"github.com/alanyoungcy/marketfund/internal/notify"
	"github.com/alanyoungcy/marketfund/internal/panel/fund"
)

// recordTimeout bounds each write the recorder makes for one event.
const recordTimeout = 10 * time.Second

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// FundingRecorder is the fund.Observer that keeps the operational record of
// funding actions: a ledger row per action, an audit entry, a bus event per
// transition, notifications and metrics. Failures are logged and never
// affect the action.
type FundingRecorder struct {
	ledger   domain.FundingActionStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	started map[string]time.Time
}

// NewFundingRecorder creates a FundingRecorder.
func NewFundingRecorder(
	ledger domain.FundingActionStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	notifier Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *FundingRecorder {
	return &FundingRecorder{
		ledger:   ledger,
		audit:    audit,
		bus:      bus,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With(slog.String("component", "funding_recorder")),
		started:  make(map[string]time.Time),
	}
}

// StatusChanged implements fund.Observer. The action context may already be
// expired when the final transition arrives, so writes run on a detached
// context.
func (r *FundingRecorder) StatusChanged(ctx context.Context, ev domain.StatusEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if ev.Status == domain.StatusLoading {
		r.begin(ctx, ev)
	} else {
		r.complete(ctx, ev)
	}
	r.publish(ctx, ev)
}

func (r *FundingRecorder) begin(ctx context.Context, ev domain.StatusEvent) {
	r.mu.Lock()
	r.started[ev.ActionID] = ev.At
	r.mu.Unlock()
	r.metrics.ActionStarted()

	err := r.ledger.Create(ctx, domain.FundingAction{
		ID:        ev.ActionID,
		Market:    ev.Market,
		Account:   ev.Account,
		Kind:      ev.Kind,
		Amount:    ev.Amount,
		Status:    domain.FundingPending,
		CreatedAt: ev.At,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "funding_recorder: create ledger row failed",
			slog.String("action_id", ev.ActionID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *FundingRecorder) complete(ctx context.Context, ev domain.StatusEvent) {
	r.mu.Lock()
	startedAt, ok := r.started[ev.ActionID]
	delete(r.started, ev.ActionID)
	r.mu.Unlock()
	if !ok {
		startedAt = ev.At
	}

	status := domain.FundingSucceeded
	if ev.Status == domain.StatusError {
		status = domain.FundingFailed
	}
	r.metrics.ActionFinished(string(ev.Kind), string(status), ev.At.Sub(startedAt))

	if err := r.ledger.Complete(ctx, ev.ActionID, status, ev.Error); err != nil {
		r.logger.ErrorContext(ctx, "funding_recorder: complete ledger row failed",
			slog.String("action_id", ev.ActionID),
			slog.String("error", err.Error()),
		)
	}

	detail := map[string]any{
		"action_id": ev.ActionID,
		"market":    ev.Market,
		"account":   ev.Account,
		"amount":    ev.Amount.String(),
		"status":    string(status),
	}
	if ev.Error != "" {
		detail["error"] = ev.Error
	}
	if err := r.audit.Log(ctx, "funding."+string(ev.Kind), detail); err != nil {
		r.logger.WarnContext(ctx, "funding_recorder: audit log failed",
			slog.String("action_id", ev.ActionID),
			slog.String("error", err.Error()),
		)
	}

	event, title := notification(ev)
	message := fmt.Sprintf("%s\nmarket: %s\naccount: %s", ev.Message, ev.Market, ev.Account)
	if ev.Error != "" {
		message += "\nerror: " + ev.Error
	}
	if err := r.notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.WarnContext(ctx, "funding_recorder: notify failed",
			slog.String("action_id", ev.ActionID),
			slog.String("error", err.Error()),
		)
	}
}

func notification(ev domain.StatusEvent) (event, title string) {
	switch {
	case ev.Status == domain.StatusError:
		return notify.EventFundingFailed, "Funding action failed"
	case ev.Kind == domain.FundingRemove:
		return notify.EventFundingRemoved, "Funding removed"
	default:
		return notify.EventFundingAdded, "Funding added"
	}
}

func (r *FundingRecorder) publish(ctx context.Context, ev domain.StatusEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.ErrorContext(ctx, "funding_recorder: marshal event failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if err := r.bus.Publish(ctx, domain.FundingChannel(ev.Market), payload); err != nil {
		r.logger.WarnContext(ctx, "funding_recorder: publish failed",
			slog.String("action_id", ev.ActionID),
			slog.String("error", err.Error()),
		)
	}
}

var _ fund.Observer = (*FundingRecorder)(nil)
