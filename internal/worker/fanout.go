package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/logger"
	"github.com/matrimony/backend/internal/models"
)

const defaultFanOutBatch = 500

type SubmittedLister interface {
	ForEachSubmitted(ctx context.Context, batchSize int, fn func(userIDs []string) error) error
}

type AccountDirectory interface {
	VisibleUserIDs(ctx context.Context, userIDs []string) ([]string, error)
}

// FanOut enqueues one standard request per eligible user. It never runs
// matching itself.
type FanOut struct {
	profiles   SubmittedLister
	accounts   AccountDirectory
	dispatcher *Dispatcher
	batchSize  int
	now        func() time.Time
	logger     *zap.Logger
}

type FanOutReport struct {
	Eligible   int `json:"eligible"`
	Enqueued   int `json:"enqueued"`
	Duplicates int `json:"duplicates"`
}

func NewFanOut(profiles SubmittedLister, accounts AccountDirectory, dispatcher *Dispatcher, now func() time.Time, log *zap.Logger) *FanOut {
	if now == nil {
		now = time.Now
	}
	return &FanOut{
		profiles:   profiles,
		accounts:   accounts,
		dispatcher: dispatcher,
		batchSize:  defaultFanOutBatch,
		now:        now,
		logger:     logger.OrNop(log),
	}
}

// NightlyKey identifies a user's standard run for one UTC day.
func NightlyKey(userID string, day time.Time) string {
	return "standard:" + userID + ":" + day.UTC().Format(time.DateOnly)
}

// Run enqueues the day's requests. Running it twice on the same day only
// reports duplicates.
func (f *FanOut) Run(ctx context.Context) (FanOutReport, error) {
	var report FanOutReport
	day := f.now()

	err := f.profiles.ForEachSubmitted(ctx, f.batchSize, func(userIDs []string) error {
		visible, err := f.accounts.VisibleUserIDs(ctx, userIDs)
		if err != nil {
			return fmt.Errorf("filter visible users: %w", err)
		}
		report.Eligible += len(visible)

		for _, userID := range visible {
			_, created, err := f.dispatcher.Submit(ctx, Submission{
				Tier:     models.TierStandard,
				UserID:   userID,
				DedupKey: NightlyKey(userID, day),
			})
			if err != nil {
				return fmt.Errorf("enqueue standard request for %s: %w", userID, err)
			}
			if created {
				report.Enqueued++
			} else {
				report.Duplicates++
			}
		}
		return nil
	})

	f.logger.Info("nightly fan-out finished",
		zap.Int("eligible", report.Eligible),
		zap.Int("enqueued", report.Enqueued),
		zap.Int("duplicates", report.Duplicates),
		zap.Error(err),
	)
	return report, err
}
