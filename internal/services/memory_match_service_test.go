package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
	"github.com/matrimony/backend/internal/storage"
)

func newMatch(id, seeker, candidate string, tier models.Tier, created time.Time) *models.Match {
	return &models.Match{
		ID:                id,
		SeekerID:          seeker,
		CandidateID:       candidate,
		Tier:              tier,
		Status:            models.MatchPending,
		UserAction:        models.ActionPending,
		MatchedUserAction: models.ActionPending,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func TestCreateMatchEnforcesPairUniqueness(t *testing.T) {
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryMatchService(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.CreateMatch(ctx, newMatch("m1", "a", "b", models.TierStandard, now)))
	assert.ErrorIs(t, s.CreateMatch(ctx, newMatch("m2", "b", "a", models.TierPriority, now)), apperrors.ErrDuplicatePair)

	got, err := s.GetMatchByPair(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)

	paired, err := s.PairedUserIDs(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, paired)
}

func TestExpiredMatchesDisappear(t *testing.T) {
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryMatchService(func() time.Time { return now })
	ctx := context.Background()

	m := newMatch("m1", "a", "b", models.TierStandard, now)
	exp := now.Add(time.Hour)
	m.ExpiresAt = &exp
	require.NoError(t, s.CreateMatch(ctx, m))

	now = now.Add(2 * time.Hour)

	_, err := s.GetMatch(ctx, "m1")
	assert.ErrorIs(t, err, apperrors.ErrMatchNotFound)
	paired, err := s.PairedUserIDs(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, paired)

	// The pair can be matched again once the old proposal expired.
	require.NoError(t, s.CreateMatch(ctx, newMatch("m2", "b", "a", models.TierStandard, now)))
}

func TestListForUserCountsPairsOnce(t *testing.T) {
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryMatchService(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.CreateMatch(ctx, newMatch("m1", "a", "b", models.TierStandard, now)))
	require.NoError(t, s.CreateMatch(ctx, newMatch("m2", "c", "a", models.TierStandard, now.Add(time.Minute))))
	require.NoError(t, s.CreateMatch(ctx, newMatch("m3", "c", "d", models.TierStandard, now)))

	list, err := s.ListForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m2", list[0].ID)
	assert.Equal(t, 2, UniquePairs(list))

	dup := append(list, newMatch("x", "b", "a", models.TierStandard, now))
	assert.Equal(t, 2, UniquePairs(dup))
}

func TestIntroduceAndRespond(t *testing.T) {
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryMatchService(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.CreateMatch(ctx, newMatch("vip", "a", "b", models.TierVIP, now)))
	require.NoError(t, s.CreateMatch(ctx, newMatch("std", "a", "c", models.TierStandard, now)))

	_, err := s.Respond(ctx, "vip", "a", true, now)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	assert.ErrorIs(t, err, models.ErrAwaitingIntro)

	_, err = s.Introduce(ctx, "std", "hello", now)
	assert.ErrorIs(t, err, models.ErrNotVIPMatch)

	m, err := s.Introduce(ctx, "vip", "Both teachers in Nairobi", now)
	require.NoError(t, err)
	assert.Equal(t, models.MatchActive, m.Status)

	_, err = s.Respond(ctx, "vip", "z", true, now)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	_, err = s.Respond(ctx, "vip", "a", true, now)
	require.NoError(t, err)
	m, err = s.Respond(ctx, "vip", "b", true, now)
	require.NoError(t, err)
	assert.Equal(t, models.MatchAccepted, m.Status)

	_, err = s.Respond(ctx, "missing", "a", true, now)
	assert.ErrorIs(t, err, apperrors.ErrMatchNotFound)
}

func TestMatchesPersistToJSON(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	store, err := storage.NewJSONStore(dir, "matches.json")
	require.NoError(t, err)

	first := NewMemoryMatchService(clock)
	require.NoError(t, first.Persist(store))
	require.NoError(t, first.CreateMatch(ctx, newMatch("m1", "a", "b", models.TierStandard, now)))
	assert.True(t, store.Exists())

	second := NewMemoryMatchService(clock)
	require.NoError(t, second.Persist(store))
	got, err := second.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, models.PairKey("a", "b"), got.PairKey)
	assert.ErrorIs(t, second.CreateMatch(ctx, newMatch("m2", "b", "a", models.TierStandard, now)), apperrors.ErrDuplicatePair)
}

func TestFailedWriteLeavesMatchesUnchanged(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	store, err := storage.NewJSONStore(dir, "matches.json")
	require.NoError(t, err)
	s := NewMemoryMatchService(func() time.Time { return now })
	require.NoError(t, s.Persist(store))
	require.NoError(t, s.CreateMatch(ctx, newMatch("vip", "a", "b", models.TierVIP, now)))

	// Nowhere left to write.
	require.NoError(t, os.RemoveAll(dir))

	assert.Error(t, s.CreateMatch(ctx, newMatch("m2", "a", "c", models.TierStandard, now)))
	_, err = s.GetMatchByPair(ctx, "a", "c")
	assert.ErrorIs(t, err, apperrors.ErrMatchNotFound)

	_, err = s.Introduce(ctx, "vip", "Both love hiking", now)
	assert.Error(t, err)
	got, err := s.GetMatch(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, models.MatchPending, got.Status)
	assert.Empty(t, got.IntroductionNote)
}
