package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/logger"
)

// NextRun returns the first hour:minute UTC strictly after now.
func NextRun(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Nightly calls fn every day at hour:minute UTC until ctx is done. A failed
// run is logged and does not stop the schedule.
func Nightly(ctx context.Context, hour, minute int, now func() time.Time, log *zap.Logger, fn func(context.Context) error) error {
	if now == nil {
		now = time.Now
	}
	log = logger.OrNop(log)

	for {
		next := NextRun(now(), hour, minute)
		log.Info("next nightly run scheduled", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if err := fn(ctx); err != nil {
			log.Error("nightly run failed", zap.Error(err))
		}
	}
}
