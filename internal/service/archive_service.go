package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// ArchiveService moves funding ledger rows past the retention window to
// cold storage.
type ArchiveService struct {
	archiver      domain.Archiver
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiveService creates an ArchiveService.
func NewArchiveService(archiver domain.Archiver, retentionDays int, interval time.Duration, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		archiver:      archiver,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           time.Now,
	}
}

// Cutoff is the creation time before which ledger rows are archived.
func (a *ArchiveService) Cutoff() time.Time {
	return a.now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run executes a single archive run.
func (a *ArchiveService) Run(ctx context.Context) (int64, error) {
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "archiver: starting run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.archiver.ArchiveFundingActions(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("archiver: funding actions before %v: %w", cutoff, err)
	}

	a.logger.InfoContext(ctx, "archiver: run complete", slog.Int64("funding_actions_archived", n))
	return n, nil
}

// RunLoop runs the archiver immediately and then on every interval until
// ctx is cancelled. A failed run is logged and retried on the next tick.
func (a *ArchiveService) RunLoop(ctx context.Context) error {
	a.logger.InfoContext(ctx, "archiver: loop started", slog.Duration("interval", a.interval))
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "archiver: run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "archiver: loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
