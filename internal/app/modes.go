package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketfund/internal/panel/market"
	"github.com/alanyoungcy/marketfund/internal/server"
	"github.com/alanyoungcy/marketfund/internal/server/handler"
	"github.com/alanyoungcy/marketfund/internal/server/ws"
	"github.com/alanyoungcy/marketfund/internal/service"
)

// shutdownTimeout bounds the HTTP shutdown and the wait for in-flight
// funding actions.
const shutdownTimeout = 10 * time.Second

// ServerMode serves the panels over HTTP and WebSocket until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPanels(ctx, g, deps)
	return waitGroup(g)
}

// FullMode serves the panels and archives the funding ledger on a schedule.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPanels(ctx, g, deps)

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		archive := service.NewArchiveService(deps.Archiver, a.cfg.Archive.RetentionDays, a.cfg.Archive.Interval.Duration, a.logger)
		g.Go(func() error {
			return archive.RunLoop(ctx)
		})
	}
	return waitGroup(g)
}

// ArchiveMode runs a single archive pass and returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	archive := service.NewArchiveService(deps.Archiver, a.cfg.Archive.RetentionDays, a.cfg.Archive.Interval.Duration, a.logger)
	n, err := archive.Run(ctx)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "archive pass complete", slog.Int64("archived", n))
	return nil
}

// startPanels builds the services, the WebSocket hub and the HTTP server and
// adds their goroutines to g.
func (a *App) startPanels(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.MarketCache, deps.AuditStore, deps.SignalBus,
		deps.Chain, deps.Chain, deps.Metrics, a.logger,
	)
	recorder := service.NewFundingRecorder(
		deps.FundingActionStore, deps.AuditStore, deps.SignalBus,
		deps.Notifier, deps.Metrics, a.logger,
	)
	fundingSvc := service.NewFundingService(
		deps.Chain, deps.Chain, deps.BalanceCache, marketSvc,
		deps.FundingActionStore, deps.LockManager, recorder, deps.Metrics,
		service.FundingOptions{
			ActionTimeout: a.cfg.Funding.ActionTimeout.Duration,
			LockTTL:       a.cfg.Funding.LockTTL.Duration,
			SessionTTL:    a.cfg.Funding.SessionTTL.Duration,
		},
		a.logger,
	)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Account:   deps.Chain.Account(),
		StartedAt: time.Now().UTC(),
	})

	sessions := func() int {
		n := fundingSvc.Sessions()
		deps.Metrics.SetSessions(n)
		return n
	}
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, deps.Chain, sessions, a.cfg.Features.Comments),
		Markets: handler.NewMarketHandler(marketSvc, fundingSvc, deps.Chain, market.Features{Comments: a.cfg.Features.Comments}, a.logger),
		Fund:    handler.NewFundHandler(fundingSvc, a.logger),
	}
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			AuthToken:   a.cfg.Server.AuthToken,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		handlers,
		hub,
		deps.Metrics.Handler(),
		deps.RateLimiter,
		deps.Metrics.ObserveRequest,
		a.logger,
	)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return fundingSvc.RunEvictor(ctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		if werr := fundingSvc.Wait(shutCtx); werr != nil {
			a.logger.WarnContext(shutCtx, "funding actions still running at shutdown",
				slog.String("error", werr.Error()),
			)
		}
		return err
	})
}

// waitGroup waits for g and treats cancellation as a clean exit.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
