// Package janitor periodically removes committed-action records that are past
// every look-back window.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule  = "@every 1h"
	DefaultRetention = 24 * time.Hour
)

type Janitor struct {
	logger    *slog.Logger
	ledger    persistence.CommittedActionRepository
	schedule  string
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// New validates schedule, a standard cron expression or descriptor.
func New(logger *slog.Logger, store persistence.Persistence, schedule string, retention time.Duration) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if retention <= 0 {
		retention = DefaultRetention
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", schedule, err)
	}

	logger = logger.With("module", "janitor")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))

	return &Janitor{
		logger:    logger,
		ledger:    store.CommittedActionRepository(),
		schedule:  schedule,
		retention: retention,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		now: time.Now,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		_, err := j.RunOnce(ctx)
		if err != nil {
			j.logger.ErrorContext(ctx, "Failed to prune committed actions", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}

	j.cron.Start()
	j.logger.InfoContext(ctx, "Janitor started", "schedule", j.schedule, "retention", j.retention)

	return nil
}

// Stop waits for a running prune, or for ctx to end.
func (j *Janitor) Stop(ctx context.Context) error {
	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce deletes records committed before the retention window.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	before := j.now().Add(-j.retention)

	pruned, err := j.ledger.Prune(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune committed actions: %w", err)
	}

	if pruned > 0 {
		j.logger.InfoContext(ctx, "Pruned committed actions", "count", pruned, "before", before)
	}

	return pruned, nil
}
