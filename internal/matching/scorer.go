package matching

import (
	"math"
	"time"

	"github.com/matrimony/backend/internal/models"
)

// Weights for the compatibility factors. They must sum to 1.0.
type Weights struct {
	Values           float64
	Lifestyle        float64
	Location         float64
	Religion         float64
	AgeCompatibility float64
	Vision           float64
	Preferences      float64
}

var DefaultWeights = Weights{
	Values:           0.25,
	Lifestyle:        0.15,
	Location:         0.10,
	Religion:         0.20,
	AgeCompatibility: 0.10,
	Vision:           0.15,
	Preferences:      0.05,
}

func (w Weights) Sum() float64 {
	return w.Values + w.Lifestyle + w.Location + w.Religion + w.AgeCompatibility + w.Vision + w.Preferences
}

// Scorer computes the weighted compatibility of a seeker/candidate pair.
// It assumes the pair already passed the hard filter.
type Scorer struct {
	weights Weights
	now     func() time.Time

	// useTraits enables the personality-trait term of the lifestyle factor.
	// It stays off until trait data is collected; with it off the term is 0.
	useTraits bool
}

func NewScorer(now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{weights: DefaultWeights, now: now}
}

// Score returns the full breakdown. Every sub-score and the total lie in [0, 100].
func (s *Scorer) Score(seeker, candidate *models.ProfileSnapshot) models.ScoreBreakdown {
	now := s.now()

	b := models.ScoreBreakdown{
		Values:           jaccard(seeker.CoreValues, candidate.CoreValues) * 100,
		Lifestyle:        s.lifestyle(seeker, candidate),
		Location:         location(seeker, candidate),
		Religion:         religion(seeker, candidate),
		AgeCompatibility: ageCompatibility(seeker.AgeAt(now), candidate.AgeAt(now)) * 100,
		Vision:           jaccard(seeker.NonNegotiables, candidate.NonNegotiables) * 100,
		Preferences:      preferences(seeker, candidate),
	}

	w := s.weights
	total := b.Values*w.Values +
		b.Lifestyle*w.Lifestyle +
		b.Location*w.Location +
		b.Religion*w.Religion +
		b.AgeCompatibility*w.AgeCompatibility +
		b.Vision*w.Vision +
		b.Preferences*w.Preferences

	b.Total = clampScore(int(math.Round(total)))
	return b
}

func (s *Scorer) lifestyle(seeker, candidate *models.ProfileSnapshot) float64 {
	marital := 50.0
	if seeker.MaritalStatus == candidate.MaritalStatus {
		marital = 100
	}

	traits := 0.0
	if s.useTraits && len(seeker.PersonalityTraits) > 0 && len(candidate.PersonalityTraits) > 0 {
		traits = jaccard(seeker.PersonalityTraits, candidate.PersonalityTraits) * 100
	}

	return (marital + traits) / 2
}

func location(seeker, candidate *models.ProfileSnapshot) float64 {
	switch {
	case seeker.Country == candidate.Country:
		return 100
	case contains(seeker.Preferences.AcceptedCountries, candidate.Country):
		return 60
	default:
		return 20
	}
}

func religion(seeker, candidate *models.ProfileSnapshot) float64 {
	if seeker.Religion == candidate.Religion {
		return 100
	}
	return 0
}

func preferences(seeker, candidate *models.ProfileSnapshot) float64 {
	if contains(seeker.Preferences.AcceptedCountries, candidate.Country) {
		return 100
	}
	return 50
}

// ageCompatibility maps an age gap in whole years to a factor in [0, 1].
func ageCompatibility(a, b int) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= 2:
		return 1.0
	case diff <= 5:
		return 0.8
	case diff <= 10:
		return 0.5
	default:
		return 0.2
	}
}

// jaccard is |a ∩ b| / |a ∪ b| over distinct elements. Two empty sets are identical.
func jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	inter := 0
	for v := range setA {
		if _, ok := setB[v]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
