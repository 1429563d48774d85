package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/logger"
	"github.com/matrimony/backend/internal/models"
	"github.com/matrimony/backend/internal/services"
)

type Options struct {
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
	JobTimeout   time.Duration
	// RetryDelay is multiplied by the attempt number.
	RetryDelay time.Duration
	Hook       UnfulfilledHook
	Now        func() time.Time
	Logger     *zap.Logger
}

// Pool leases match requests and runs them. The queue is the only state
// shared between workers, so any number of pools may run side by side.
type Pool struct {
	queue  Queue
	runner Runner
	opts   Options
	logger *zap.Logger
}

func NewPool(queue Queue, runner Runner, opts Options) *Pool {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logger.OrNop(opts.Logger)
	if opts.Hook == nil {
		opts.Hook = LogUnfulfilled(log)
	}
	return &Pool{queue: queue, runner: runner, opts: opts, logger: log}
}

// Run starts the workers and blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Concurrency; i++ {
		log := p.logger.With(zap.Int("worker", i))
		g.Go(func() error {
			return p.loop(ctx, log)
		})
	}
	p.logger.Info("worker pool started", zap.Int("concurrency", p.opts.Concurrency))
	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

// loop keeps going immediately while there is work and sleeps for the poll
// interval once the queue is drained.
func (p *Pool) loop(ctx context.Context, log *zap.Logger) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		worked, err := p.ProcessNext(ctx)
		if err != nil {
			log.Warn("queue unavailable", zap.Error(err))
		}
		timer.Reset(p.interval(worked, err))
	}
}

func (p *Pool) interval(worked bool, err error) time.Duration {
	if worked && err == nil {
		return 0
	}
	return p.opts.PollInterval
}

// Drain processes requests until none is leasable and returns how many ran.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		worked, err := p.ProcessNext(ctx)
		if err != nil {
			return n, err
		}
		if !worked {
			return n, nil
		}
		n++
	}
}

// ProcessNext leases and runs one request. It reports false when the queue
// had nothing to lease, after reaping abandoned requests.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	r, err := p.queue.Lease(ctx, p.opts.Now(), p.opts.Lease)
	if errors.Is(err, services.ErrQueueEmpty) {
		p.reap(ctx)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lease match request: %w", err)
	}

	p.process(ctx, r)
	return true, nil
}

func (p *Pool) process(ctx context.Context, r *models.MatchRequest) {
	log := p.logger.With(
		zap.String("request_id", r.ID),
		zap.String("tier", string(r.Tier)),
		zap.String("user_id", r.RequesterID),
		zap.Int("attempt", r.Attempts),
	)

	out, runErr := p.run(ctx, r)
	now := p.opts.Now()

	var err error
	switch {
	case runErr == nil:
		err = r.Complete(out, now)
		log.Info("match request completed", zap.Strings("match_ids", out.MatchIDs))
	case errors.Is(runErr, apperrors.ErrNoSuitableMatches):
		err = r.NoCandidates(out, now)
		log.Info("match request found no candidates", zap.Int("considered", out.CandidatesConsidered))
	default:
		err = r.Fail(runErr, apperrors.Retryable(runErr), now)
		r.ErrorKind = string(apperrors.KindOf(runErr))
		if err == nil && r.CanRetry() {
			err = r.Requeue(now, p.opts.RetryDelay*time.Duration(r.Attempts))
			log.Warn("match request failed, retrying", zap.Error(runErr), zap.Time("available_at", r.AvailableAt))
		} else {
			log.Error("match request failed", zap.Error(runErr), zap.Bool("retryable", r.Retryable))
		}
	}
	if err != nil {
		log.Error("invalid match request transition", zap.Error(err))
		return
	}

	// Record the outcome even when shutdown is under way.
	if err := p.queue.Finish(context.WithoutCancel(ctx), r); err != nil {
		if errors.Is(err, services.ErrLeaseLost) {
			log.Warn("lease lost, outcome discarded")
			return
		}
		log.Error("failed to record match request outcome", zap.Error(err))
		return
	}

	p.notify(ctx, r)
}

// run executes the engine under the job timeout and turns a panic into a failure.
func (p *Pool) run(ctx context.Context, r *models.MatchRequest) (out models.Outcome, err error) {
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while matching: %v", rec)
		}
	}()
	return p.runner.Run(ctx, r.Tier, r.RequesterID)
}

func (p *Pool) reap(ctx context.Context) {
	reaped, err := p.queue.ReapExpired(ctx, p.opts.Now())
	if err != nil {
		p.logger.Warn("failed to reap expired leases", zap.Error(err))
		return
	}
	for _, r := range reaped {
		p.logger.Error("match request abandoned after final attempt",
			zap.String("request_id", r.ID),
			zap.String("tier", string(r.Tier)),
			zap.Int("attempts", r.Attempts),
		)
		p.notify(ctx, r)
	}
}

func (p *Pool) notify(ctx context.Context, r *models.MatchRequest) {
	if r.Tier != models.TierPriority {
		return
	}
	switch {
	case r.Status == models.RequestNoCandidates,
		r.Status == models.RequestFailed && r.Terminal():
		p.opts.Hook(ctx, r)
	}
}
