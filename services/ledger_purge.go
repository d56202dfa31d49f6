package services

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

const purgeRetryDelay = 30 * time.Second

// RunPurgeSchedule deletes expired inbox entries on every tick of cronExpr
// until ctx is cancelled. It returns ctx.Err() on shutdown.
func (l *Ledger) RunPurgeSchedule(ctx context.Context, cronExpr string, logger *zap.Logger) error {
	if cronExpr == "" {
		cronExpr = "@hourly"
	}
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid purge cron expression: %q", cronExpr)
	}
	logger.Info("ledger_purge_scheduled", zap.String("cron", cronExpr))

	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		wait := time.Until(next)
		if err != nil {
			logger.Error("ledger_purge_next_tick_failed", zap.String("cron", cronExpr), zap.Error(err))
			wait = purgeRetryDelay
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("ledger_purge_stopping")
			return ctx.Err()
		case <-timer.C:
		}
		if err != nil {
			continue
		}

		n, err := l.PurgeExpired(ctx, time.Now())
		if err != nil {
			logger.Error("ledger_purge_failed", zap.Error(err))
			continue
		}
		if n > 0 {
			logger.Info("ledger_purged", zap.Int64("deleted", n))
		}
	}
}
