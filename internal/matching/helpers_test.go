package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
)

var testNow = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// bornYearsAgo returns a date of birth that makes the person exactly years old at testNow.
func bornYearsAgo(years int) time.Time {
	return time.Date(testNow.Year()-years, time.January, 15, 0, 0, 0, 0, time.UTC)
}

// scenarioSeeker is the 30-year-old Kenyan seeker used throughout the tests.
func scenarioSeeker() *models.ProfileSnapshot {
	return &models.ProfileSnapshot{
		UserID:        "seeker",
		Gender:        models.GenderMale,
		DOB:           bornYearsAgo(30),
		Country:       "KE",
		City:          "Nairobi",
		MaritalStatus: "never_married",
		Religion:      "Islam",
		CoreValues:    []string{"faith", "family"},
		Preferences: models.Preferences{
			AgeRange:          models.AgeRange{Min: 25, Max: 35},
			AcceptedCountries: []string{"KE", "TZ"},
			AcceptedReligions: []string{"Islam"},
		},
		IsSubmitted: true,
		Verified:    true,
	}
}

// strongCandidate passes the scenario seeker's hard filter and scores highly.
func strongCandidate(id string) *models.ProfileSnapshot {
	return &models.ProfileSnapshot{
		UserID:        id,
		Gender:        models.GenderFemale,
		DOB:           bornYearsAgo(27),
		Country:       "KE",
		City:          "Nairobi",
		MaritalStatus: "never_married",
		Religion:      "Islam",
		CoreValues:    []string{"faith", "family"},
		IsSubmitted:   true,
		Verified:      true,
	}
}

// weakCandidate passes the hard filter but scores below the standard threshold.
func weakCandidate(id string) *models.ProfileSnapshot {
	return &models.ProfileSnapshot{
		UserID:         id,
		Gender:         models.GenderFemale,
		DOB:            bornYearsAgo(25),
		Country:        "TZ",
		MaritalStatus:  "divorced",
		Religion:       "Islam",
		CoreValues:     []string{"adventure"},
		NonNegotiables: []string{"city_life"},
		IsSubmitted:    true,
		Verified:       true,
	}
}

type fakeProfiles map[string]*models.ProfileSnapshot

func (f fakeProfiles) GetProfile(_ context.Context, userID string) (*models.ProfileSnapshot, error) {
	p, ok := f[userID]
	if !ok {
		return nil, apperrors.ErrProfileNotFound
	}
	return p, nil
}

type fakeRetriever struct {
	pool []*models.ProfileSnapshot
	err  error
}

func (f *fakeRetriever) Retrieve(context.Context, *models.ProfileSnapshot) ([]*models.ProfileSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]*models.ProfileSnapshot(nil), f.pool...), nil
}

type fakeMatches struct {
	mu     sync.Mutex
	byPair map[string]*models.Match
	order  []*models.Match

	// hidePairs simulates a racing job that has not yet seen the other's insert.
	hidePairs bool
}

func newFakeMatches() *fakeMatches {
	return &fakeMatches{byPair: map[string]*models.Match{}}
}

func (f *fakeMatches) CreateMatch(_ context.Context, m *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byPair[m.PairKey]; ok {
		return apperrors.ErrDuplicatePair
	}
	f.byPair[m.PairKey] = m
	f.order = append(f.order, m)
	return nil
}

func (f *fakeMatches) GetMatchByPair(_ context.Context, a, b string) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byPair[models.PairKey(a, b)]
	if !ok {
		return nil, apperrors.ErrMatchNotFound
	}
	return m, nil
}

func (f *fakeMatches) PairedUserIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hidePairs {
		return nil, nil
	}
	var ids []string
	for _, m := range f.order {
		if other := m.Counterpart(userID); other != "" {
			ids = append(ids, other)
		}
	}
	return ids, nil
}

func (f *fakeMatches) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("match-%d", n)
	}
}
