package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
)

type engineFixture struct {
	engine    *Engine
	retriever *fakeRetriever
	matches   *fakeMatches
	seeker    *models.ProfileSnapshot
}

func newEngineFixture(t *testing.T, pool ...*models.ProfileSnapshot) *engineFixture {
	t.Helper()

	seeker := scenarioSeeker()
	retriever := &fakeRetriever{pool: pool}
	matches := newFakeMatches()

	engine, err := NewEngine(fakeProfiles{seeker.UserID: seeker}, retriever, matches, Options{
		StandardTTL: 7 * 24 * time.Hour,
		PriorityTTL: 14 * 24 * time.Hour,
		Now:         fixedNow,
		NewID:       sequentialIDs(),
	})
	require.NoError(t, err)

	return &engineFixture{engine: engine, retriever: retriever, matches: matches, seeker: seeker}
}

func strongPool(prefix string, n int) []*models.ProfileSnapshot {
	pool := make([]*models.ProfileSnapshot, 0, n)
	for i := 0; i < n; i++ {
		pool = append(pool, strongCandidate(fmt.Sprintf("%s%d", prefix, i)))
	}
	return pool
}

func candidateIDs(t *testing.T, m *fakeMatches, ids []string) []string {
	t.Helper()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, match := range m.order {
			if match.ID == id {
				out = append(out, match.CandidateID)
				found = true
			}
		}
		require.True(t, found, "match %s not stored", id)
	}
	return out
}

func TestRunStandardKeepsTopFiveAboveThreshold(t *testing.T) {
	pool := append([]*models.ProfileSnapshot{weakCandidate("weak0")}, strongPool("s", 7)...)
	pool = append(pool, weakCandidate("weak1"))
	fx := newEngineFixture(t, pool...)

	out, err := fx.engine.RunStandard(context.Background(), fx.seeker.UserID)
	require.NoError(t, err)

	assert.Len(t, out.MatchIDs, StandardLimit)
	assert.Equal(t, []string{"s0", "s1", "s2", "s3", "s4"}, candidateIDs(t, fx.matches, out.MatchIDs))
	assert.Equal(t, 9, out.CandidatesConsidered)
	assert.Equal(t, 9, out.CandidatesFiltered)

	for _, m := range fx.matches.order {
		assert.GreaterOrEqual(t, m.Score, StandardMinScore)
		assert.Equal(t, models.TierStandard, m.Tier)
		assert.Equal(t, models.MatchPending, m.Status)
		assert.Equal(t, models.ActionPending, m.UserAction)
		assert.Equal(t, models.ActionPending, m.MatchedUserAction)
		require.NotNil(t, m.ExpiresAt)
		assert.Equal(t, testNow.Add(7*24*time.Hour), *m.ExpiresAt)
	}
}

func TestRunStandardZeroSurvivorsIsNotAnError(t *testing.T) {
	fx := newEngineFixture(t, weakCandidate("w0"), weakCandidate("w1"))

	out, err := fx.engine.RunStandard(context.Background(), fx.seeker.UserID)
	require.NoError(t, err)
	assert.Empty(t, out.MatchIDs)
	assert.Equal(t, 0, fx.matches.count())
}

func TestRunStandardSkipsExistingPairs(t *testing.T) {
	fx := newEngineFixture(t, strongPool("s", 3)...)
	ctx := context.Background()

	first, err := fx.engine.RunStandard(ctx, fx.seeker.UserID)
	require.NoError(t, err)
	assert.Len(t, first.MatchIDs, 3)

	second, err := fx.engine.RunStandard(ctx, fx.seeker.UserID)
	require.NoError(t, err)
	assert.Empty(t, second.MatchIDs)
	assert.Equal(t, 3, second.CandidatesConsidered)
	assert.Equal(t, 3, fx.matches.count())
}

func TestRunPriority(t *testing.T) {
	weak := weakCandidate("weak")
	fx := newEngineFixture(t, weak, strongCandidate("best"))

	out, err := fx.engine.RunPriority(context.Background(), fx.seeker.UserID)
	require.NoError(t, err)

	require.Len(t, out.MatchIDs, 1)
	assert.Equal(t, []string{"best"}, candidateIDs(t, fx.matches, out.MatchIDs))
	assert.Equal(t, 2, out.CandidatesConsidered)
	assert.Equal(t, 2, out.CandidatesFiltered)
	assert.Equal(t, fx.matches.order[0].Score, out.TopScore)
	assert.Equal(t, models.TierPriority, fx.matches.order[0].Tier)
	require.NotNil(t, fx.matches.order[0].ExpiresAt)
	assert.Equal(t, testNow.Add(14*24*time.Hour), *fx.matches.order[0].ExpiresAt)
}

func TestRunPriorityNoThreshold(t *testing.T) {
	fx := newEngineFixture(t, weakCandidate("weak"))

	out, err := fx.engine.RunPriority(context.Background(), fx.seeker.UserID)
	require.NoError(t, err)
	assert.Len(t, out.MatchIDs, 1)
	assert.Less(t, out.TopScore, StandardMinScore)
}

func TestRunPriorityEmptyPool(t *testing.T) {
	fx := newEngineFixture(t)

	out, err := fx.engine.RunPriority(context.Background(), fx.seeker.UserID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNoSuitableMatches))
	assert.False(t, apperrors.Retryable(err))
	assert.Equal(t, 404, apperrors.HTTPStatus(err))
	assert.Empty(t, out.MatchIDs)
	assert.Equal(t, 0, fx.matches.count())
}

func TestRunPriorityEverythingFiltered(t *testing.T) {
	old := strongCandidate("old")
	old.DOB = bornYearsAgo(50)
	fx := newEngineFixture(t, old)

	out, err := fx.engine.RunPriority(context.Background(), fx.seeker.UserID)
	assert.ErrorIs(t, err, apperrors.ErrNoSuitableMatches)
	assert.Equal(t, 1, out.CandidatesConsidered)
	assert.Equal(t, 0, out.CandidatesFiltered)
}

func TestRunVIPKeepsTopTenWithoutExpiry(t *testing.T) {
	unverified := strongCandidate("unverified")
	unverified.Verified = false
	pool := append([]*models.ProfileSnapshot{unverified}, strongPool("v", 12)...)
	fx := newEngineFixture(t, pool...)

	out, err := fx.engine.RunVIP(context.Background(), fx.seeker.UserID)
	require.NoError(t, err)

	assert.Len(t, out.MatchIDs, VIPLimit)
	assert.NotContains(t, candidateIDs(t, fx.matches, out.MatchIDs), "unverified")
	for _, m := range fx.matches.order {
		assert.Equal(t, models.TierVIP, m.Tier)
		assert.Equal(t, models.MatchPending, m.Status)
		assert.Nil(t, m.ExpiresAt)
	}
}

func TestTieBreakKeepsRetrievalOrder(t *testing.T) {
	tiers := []models.Tier{models.TierStandard, models.TierPriority, models.TierVIP}

	for _, tier := range tiers {
		t.Run(string(tier), func(t *testing.T) {
			// Same score; only the later candidate shares the seeker's city.
			first := strongCandidate("first-id")
			first.City = "Mombasa"
			fx := newEngineFixture(t, first, strongCandidate("second-id"))

			out, err := fx.engine.Run(context.Background(), tier, fx.seeker.UserID)
			require.NoError(t, err)
			require.NotEmpty(t, out.MatchIDs)
			assert.Equal(t, "first-id", candidateIDs(t, fx.matches, out.MatchIDs)[0])
		})
	}
}

func TestDuplicatePairIsIdempotent(t *testing.T) {
	fx := newEngineFixture(t, strongCandidate("c1"))
	fx.matches.hidePairs = true
	ctx := context.Background()

	first, err := fx.engine.RunPriority(ctx, fx.seeker.UserID)
	require.NoError(t, err)

	second, err := fx.engine.RunPriority(ctx, fx.seeker.UserID)
	require.NoError(t, err)

	assert.Equal(t, first.MatchIDs, second.MatchIDs)
	assert.Equal(t, 1, fx.matches.count())
}

func TestRunRequiresSubmittedProfile(t *testing.T) {
	fx := newEngineFixture(t, strongCandidate("c1"))
	fx.seeker.IsSubmitted = false

	for _, tier := range []models.Tier{models.TierStandard, models.TierPriority, models.TierVIP} {
		_, err := fx.engine.Run(context.Background(), tier, fx.seeker.UserID)
		assert.ErrorIs(t, err, apperrors.ErrProfileIncomplete)
		assert.Equal(t, 400, apperrors.HTTPStatus(err))
		assert.False(t, apperrors.Retryable(err))
	}
}

func TestRunUnknownProfile(t *testing.T) {
	fx := newEngineFixture(t)

	_, err := fx.engine.RunStandard(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrProfileNotFound)
}

func TestRetrievalFailureIsRetryable(t *testing.T) {
	fx := newEngineFixture(t)
	fx.retriever.err = errors.New("connection reset")

	_, err := fx.engine.RunPriority(context.Background(), fx.seeker.UserID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNoSuitableMatches)
	assert.True(t, apperrors.Retryable(err))
}

func TestRunUnknownTier(t *testing.T) {
	fx := newEngineFixture(t)

	_, err := fx.engine.Run(context.Background(), models.Tier("gold"), fx.seeker.UserID)
	assert.Equal(t, apperrors.KindPrecondition, apperrors.KindOf(err))
}
