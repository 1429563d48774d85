package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
)

// Selection limits per tier.
const (
	StandardLimit    = 5
	StandardMinScore = 50
	VIPLimit         = 10
)

// ProfileReader loads a seeker's snapshot.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*models.ProfileSnapshot, error)
}

// CandidateRetriever returns the visible candidate pool for a seeker, in relevance order.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, seeker *models.ProfileSnapshot) ([]*models.ProfileSnapshot, error)
}

// MatchStore persists matches. CreateMatch returns apperrors.ErrDuplicatePair
// when a match for the unordered pair already exists.
type MatchStore interface {
	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatchByPair(ctx context.Context, a, b string) (*models.Match, error)
	PairedUserIDs(ctx context.Context, userID string) ([]string, error)
}

type Options struct {
	StandardTTL time.Duration
	PriorityTTL time.Duration
	VIP         *VIPFilter
	Now         func() time.Time
	NewID       func() string
	Logger      *zap.Logger
}

// Engine composes retrieval, filtering, and scoring per tier and persists the result.
type Engine struct {
	profiles  ProfileReader
	retriever CandidateRetriever
	matches   MatchStore

	scorer *Scorer
	hard   Chain
	vip    *VIPFilter
	ttl    map[models.Tier]time.Duration

	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

func NewEngine(profiles ProfileReader, retriever CandidateRetriever, matches MatchStore, opts Options) (*Engine, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.VIP == nil {
		vip, err := NewVIPFilter(DefaultVIPRules())
		if err != nil {
			return nil, err
		}
		opts.VIP = vip
	}

	return &Engine{
		profiles:  profiles,
		retriever: retriever,
		matches:   matches,
		scorer:    NewScorer(opts.Now),
		hard:      HardFilter(),
		vip:       opts.VIP,
		ttl: map[models.Tier]time.Duration{
			models.TierStandard: opts.StandardTTL,
			models.TierPriority: opts.PriorityTTL,
		},
		now:    opts.Now,
		newID:  opts.NewID,
		logger: opts.Logger,
	}, nil
}

// Scored is a candidate with its breakdown.
type Scored struct {
	Profile   *models.ProfileSnapshot
	Breakdown models.ScoreBreakdown
}

// Run dispatches to the tier's orchestration.
func (e *Engine) Run(ctx context.Context, tier models.Tier, userID string) (models.Outcome, error) {
	switch tier {
	case models.TierStandard:
		return e.RunStandard(ctx, userID)
	case models.TierPriority:
		return e.RunPriority(ctx, userID)
	case models.TierVIP:
		return e.RunVIP(ctx, userID)
	}
	return models.Outcome{}, apperrors.New(apperrors.KindPrecondition, fmt.Sprintf("unknown tier %q", tier))
}

// RunStandard keeps at most StandardLimit candidates scoring at least
// StandardMinScore. Zero survivors is a successful empty run.
func (e *Engine) RunStandard(ctx context.Context, userID string) (models.Outcome, error) {
	seeker, err := e.seeker(ctx, userID)
	if err != nil {
		return models.Outcome{}, err
	}

	ranked, out, err := e.rank(ctx, seeker, models.TierStandard)
	if err != nil {
		return out, err
	}

	selected := make([]Scored, 0, StandardLimit)
	for _, s := range ranked {
		if s.Breakdown.Total < StandardMinScore {
			continue
		}
		selected = append(selected, s)
		if len(selected) == StandardLimit {
			break
		}
	}

	out.MatchIDs, err = e.persist(ctx, seeker, selected, models.TierStandard)
	if err != nil {
		return out, err
	}

	e.logger.Info("standard matching finished",
		zap.String("user_id", userID),
		zap.Int("matches", len(out.MatchIDs)),
		zap.Int("considered", out.CandidatesConsidered),
		zap.Int("scored", out.CandidatesFiltered),
	)
	return out, nil
}

// RunPriority creates exactly one match for the top candidate, with no score
// threshold. The caller has already reserved the credit.
func (e *Engine) RunPriority(ctx context.Context, userID string) (models.Outcome, error) {
	seeker, err := e.seeker(ctx, userID)
	if err != nil {
		return models.Outcome{}, err
	}

	ranked, out, err := e.rank(ctx, seeker, models.TierPriority)
	if err != nil {
		return out, err
	}
	if len(ranked) == 0 {
		e.logger.Info("priority matching found no candidates",
			zap.String("user_id", userID),
			zap.Int("considered", out.CandidatesConsidered),
		)
		return out, apperrors.ErrNoSuitableMatches
	}

	out.MatchIDs, err = e.persist(ctx, seeker, ranked[:1], models.TierPriority)
	if err != nil {
		return out, err
	}

	e.logger.Info("priority matching finished",
		zap.String("user_id", userID),
		zap.String("match_id", out.MatchIDs[0]),
		zap.Int("top_score", out.TopScore),
	)
	return out, nil
}

// RunVIP creates up to VIPLimit pending proposals awaiting matchmaker introduction.
func (e *Engine) RunVIP(ctx context.Context, userID string) (models.Outcome, error) {
	seeker, err := e.seeker(ctx, userID)
	if err != nil {
		return models.Outcome{}, err
	}

	ranked, out, err := e.rank(ctx, seeker, models.TierVIP)
	if err != nil {
		return out, err
	}
	if len(ranked) > VIPLimit {
		ranked = ranked[:VIPLimit]
	}

	out.MatchIDs, err = e.persist(ctx, seeker, ranked, models.TierVIP)
	if err != nil {
		return out, err
	}

	e.logger.Info("vip matching finished",
		zap.String("user_id", userID),
		zap.Int("proposals", len(out.MatchIDs)),
	)
	return out, nil
}

func (e *Engine) seeker(ctx context.Context, userID string) (*models.ProfileSnapshot, error) {
	seeker, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !seeker.IsSubmitted {
		return nil, apperrors.ErrProfileIncomplete
	}
	return seeker, nil
}

// rank runs retrieve, exclusion, filters, and scoring, then sorts by total
// descending. Equal totals keep retrieval order.
func (e *Engine) rank(ctx context.Context, seeker *models.ProfileSnapshot, tier models.Tier) ([]Scored, models.Outcome, error) {
	var out models.Outcome
	now := e.now()
	log := e.logger.With(zap.String("user_id", seeker.UserID), zap.String("tier", string(tier)))

	pool, err := e.retriever.Retrieve(ctx, seeker)
	if err != nil {
		return nil, out, fmt.Errorf("retrieve candidates: %w", err)
	}
	out.CandidatesConsidered = len(pool)

	pool, err = e.excludePaired(ctx, seeker.UserID, pool)
	if err != nil {
		return nil, out, err
	}

	pool, step := e.hard.Apply(seeker, pool, now)
	log.Debug("filter step", step.fields(e.hard.Name())...)

	if tier == models.TierVIP {
		pool, step = e.vip.Apply(seeker, pool, now)
		log.Debug("filter step", step.fields(e.vip.chain.Name())...)
	}

	ranked := make([]Scored, 0, len(pool))
	for _, cand := range pool {
		ranked = append(ranked, Scored{Profile: cand, Breakdown: e.scorer.Score(seeker, cand)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Breakdown.Total > ranked[j].Breakdown.Total
	})

	out.CandidatesFiltered = len(ranked)
	if len(ranked) > 0 {
		out.TopScore = ranked[0].Breakdown.Total
	}
	return ranked, out, nil
}

// excludePaired drops candidates that already share a match with the seeker in either direction.
func (e *Engine) excludePaired(ctx context.Context, userID string, pool []*models.ProfileSnapshot) ([]*models.ProfileSnapshot, error) {
	paired, err := e.matches.PairedUserIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load existing pairs: %w", err)
	}
	if len(paired) == 0 {
		return pool, nil
	}

	skip := toSet(paired)
	kept := pool[:0:0]
	for _, cand := range pool {
		if _, ok := skip[cand.UserID]; ok {
			continue
		}
		kept = append(kept, cand)
	}
	return kept, nil
}

func (e *Engine) persist(ctx context.Context, seeker *models.ProfileSnapshot, selected []Scored, tier models.Tier) ([]string, error) {
	ids := make([]string, 0, len(selected))
	for _, s := range selected {
		id, err := e.createMatch(ctx, seeker.UserID, s, tier)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// createMatch inserts one pending match. A pair collision resolves to the
// existing match id.
func (e *Engine) createMatch(ctx context.Context, seekerID string, s Scored, tier models.Tier) (string, error) {
	now := e.now()
	m := &models.Match{
		ID:                e.newID(),
		SeekerID:          seekerID,
		CandidateID:       s.Profile.UserID,
		PairKey:           models.PairKey(seekerID, s.Profile.UserID),
		Score:             s.Breakdown.Total,
		Breakdown:         s.Breakdown,
		Tier:              tier,
		Status:            models.MatchPending,
		UserAction:        models.ActionPending,
		MatchedUserAction: models.ActionPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if ttl := e.ttl[tier]; ttl > 0 {
		exp := now.Add(ttl)
		m.ExpiresAt = &exp
	}

	err := e.matches.CreateMatch(ctx, m)
	if err == nil {
		return m.ID, nil
	}
	if !errors.Is(err, apperrors.ErrDuplicatePair) {
		return "", fmt.Errorf("create match: %w", err)
	}

	existing, err := e.matches.GetMatchByPair(ctx, seekerID, s.Profile.UserID)
	if err != nil {
		return "", fmt.Errorf("load existing match: %w", err)
	}
	e.logger.Debug("match already exists for pair",
		zap.String("pair_key", m.PairKey),
		zap.String("match_id", existing.ID),
	)
	return existing.ID, nil
}
