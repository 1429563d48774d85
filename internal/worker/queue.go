package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/logger"
	"github.com/matrimony/backend/internal/models"
)

// Queue is the durable match request queue shared by API and workers.
type Queue interface {
	Enqueue(ctx context.Context, r *models.MatchRequest) (*models.MatchRequest, bool, error)
	Get(ctx context.Context, id string) (*models.MatchRequest, error)
	Lease(ctx context.Context, now time.Time, lease time.Duration) (*models.MatchRequest, error)
	Finish(ctx context.Context, r *models.MatchRequest) error
	ReapExpired(ctx context.Context, now time.Time) ([]*models.MatchRequest, error)
}

// Runner executes one tier's matching for a user.
type Runner interface {
	Run(ctx context.Context, tier models.Tier, userID string) (models.Outcome, error)
}

const defaultAwaitPoll = 200 * time.Millisecond

// Dispatcher enqueues match requests and waits on their outcome.
type Dispatcher struct {
	queue  Queue
	poll   time.Duration
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

func NewDispatcher(queue Queue, poll time.Duration, now func() time.Time, log *zap.Logger) *Dispatcher {
	if poll <= 0 {
		poll = defaultAwaitPoll
	}
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		queue:  queue,
		poll:   poll,
		now:    now,
		newID:  func() string { return uuid.New().String() },
		logger: logger.OrNop(log),
	}
}

// Submission describes a request to enqueue.
type Submission struct {
	Tier      models.Tier
	UserID    string
	PaymentID string
	// DedupKey makes the submission idempotent when set.
	DedupKey string
}

// Submit enqueues a request. When the dedup key is already taken the existing
// request is returned and created is false.
func (d *Dispatcher) Submit(ctx context.Context, sub Submission) (*models.MatchRequest, bool, error) {
	r := models.NewMatchRequest(d.newID(), sub.UserID, sub.Tier, d.now())
	r.PaymentID = sub.PaymentID
	r.DedupKey = sub.DedupKey

	got, created, err := d.queue.Enqueue(ctx, r)
	if err != nil {
		return nil, false, err
	}
	if created {
		d.logger.Debug("match request queued",
			zap.String("request_id", got.ID),
			zap.String("tier", string(sub.Tier)),
			zap.String("user_id", sub.UserID),
		)
	}
	return got, created, nil
}

// Await polls the request until it is terminal or wait elapses, and returns
// the last state seen. Callers check Terminal to tell the two apart.
func (d *Dispatcher) Await(ctx context.Context, id string, wait time.Duration) (*models.MatchRequest, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		r, err := d.queue.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Terminal() {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return r, nil
		case <-deadline.C:
			return r, nil
		case <-ticker.C:
		}
	}
}
