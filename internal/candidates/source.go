package candidates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
)

// DefaultLimit bounds the indexed candidate pool.
const DefaultLimit = 200

// CandidateSource fetches structurally plausible candidates: opposite declared
// gender, submitted profiles, seeker excluded.
type CandidateSource interface {
	Name() string
	Healthy(ctx context.Context) bool
	Candidates(ctx context.Context, seeker *models.ProfileSnapshot) ([]*models.ProfileSnapshot, error)
}

// AccountDirectory returns the subset of ids backed by active, non-suspended member accounts.
type AccountDirectory interface {
	VisibleUserIDs(ctx context.Context, userIDs []string) ([]string, error)
}

type Options struct {
	// HealthCheck is how long a primary health result is trusted.
	HealthCheck time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

// Retriever picks the indexed source while it is healthy and the linear scan
// otherwise, then applies the visibility filter.
type Retriever struct {
	primary  CandidateSource
	fallback CandidateSource
	accounts AccountDirectory

	healthTTL time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// NewRetriever builds a retriever. primary may be nil when no search index exists.
func NewRetriever(primary, fallback CandidateSource, accounts AccountDirectory, opts Options) *Retriever {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Retriever{
		primary:   primary,
		fallback:  fallback,
		accounts:  accounts,
		healthTTL: opts.HealthCheck,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Retrieve returns the visible pool in source order. No results is an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, seeker *models.ProfileSnapshot) ([]*models.ProfileSnapshot, error) {
	if models.OppositeGender(seeker.Gender) == "" {
		r.logger.Warn("seeker has no supported gender, empty pool", zap.String("user_id", seeker.UserID))
		return []*models.ProfileSnapshot{}, nil
	}

	src := r.source(ctx)
	pool, err := src.Candidates(ctx, seeker)
	if err != nil && src != r.fallback {
		r.logger.Warn("candidate source failed, falling back",
			zap.String("source", src.Name()),
			zap.String("fallback", r.fallback.Name()),
			zap.Error(err),
		)
		r.markUnhealthy()
		src = r.fallback
		pool, err = src.Candidates(ctx, seeker)
	}
	if err != nil {
		return nil, unavailable(fmt.Errorf("%s: %w", src.Name(), err))
	}

	visible, err := r.visible(ctx, seeker.UserID, pool)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("candidate pool retrieved",
		zap.String("user_id", seeker.UserID),
		zap.String("source", src.Name()),
		zap.Int("retrieved", len(pool)),
		zap.Int("visible", len(visible)),
	)
	return visible, nil
}

func (r *Retriever) source(ctx context.Context) CandidateSource {
	if r.primary == nil {
		return r.fallback
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.checkedAt.IsZero() || now.Sub(r.checkedAt) >= r.healthTTL {
		r.healthy = r.primary.Healthy(ctx)
		r.checkedAt = now
		if !r.healthy {
			r.logger.Warn("candidate index unhealthy, using fallback", zap.String("source", r.primary.Name()))
		}
	}
	if r.healthy {
		return r.primary
	}
	return r.fallback
}

func (r *Retriever) markUnhealthy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthy = false
	r.checkedAt = r.now()
}

func (r *Retriever) visible(ctx context.Context, seekerID string, pool []*models.ProfileSnapshot) ([]*models.ProfileSnapshot, error) {
	if len(pool) == 0 {
		return []*models.ProfileSnapshot{}, nil
	}

	ids := make([]string, 0, len(pool))
	for _, p := range pool {
		ids = append(ids, p.UserID)
	}
	allowed, err := r.accounts.VisibleUserIDs(ctx, ids)
	if err != nil {
		return nil, unavailable(fmt.Errorf("account visibility: %w", err))
	}

	ok := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		ok[id] = struct{}{}
	}

	out := make([]*models.ProfileSnapshot, 0, len(pool))
	for _, p := range pool {
		if p.UserID == seekerID {
			continue
		}
		if _, visible := ok[p.UserID]; visible {
			out = append(out, p)
		}
	}
	return out, nil
}

// unavailable marks a store failure as transient so workers retry it.
func unavailable(err error) error {
	return apperrors.Wrap(err, apperrors.KindTransient, apperrors.ErrPoolUnavailable.Message)
}
