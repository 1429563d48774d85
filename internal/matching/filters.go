package matching

import (
	"time"

	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/models"
)

// Predicate is one eliminator in a filter chain. Allow must be pure.
type Predicate interface {
	Name() string
	Allow(seeker, candidate *models.ProfileSnapshot, now time.Time) bool
}

type predicateFunc struct {
	name  string
	allow func(seeker, candidate *models.ProfileSnapshot, now time.Time) bool
}

// NewPredicate wraps a function as a named Predicate.
func NewPredicate(name string, allow func(seeker, candidate *models.ProfileSnapshot, now time.Time) bool) Predicate {
	return predicateFunc{name: name, allow: allow}
}

func (p predicateFunc) Name() string { return p.name }

func (p predicateFunc) Allow(seeker, candidate *models.ProfileSnapshot, now time.Time) bool {
	return p.allow(seeker, candidate, now)
}

// Step describes the result of running a chain over a pool.
type Step struct {
	Initial   int
	Dropped   int
	Left      int
	DroppedBy map[string]int
}

// Chain is an ordered list of predicates. A candidate must pass all of them.
type Chain struct {
	name       string
	predicates []Predicate
}

func NewChain(name string, predicates ...Predicate) Chain {
	return Chain{name: name, predicates: predicates}
}

func (c Chain) Name() string { return c.name }

// With returns a copy of the chain with extra predicates appended.
func (c Chain) With(predicates ...Predicate) Chain {
	merged := make([]Predicate, 0, len(c.predicates)+len(predicates))
	merged = append(merged, c.predicates...)
	merged = append(merged, predicates...)
	return Chain{name: c.name, predicates: merged}
}

// Passes reports whether candidate survives every predicate.
func (c Chain) Passes(seeker, candidate *models.ProfileSnapshot, now time.Time) bool {
	return c.firstFailure(seeker, candidate, now) == ""
}

func (c Chain) firstFailure(seeker, candidate *models.ProfileSnapshot, now time.Time) string {
	for _, p := range c.predicates {
		if !p.Allow(seeker, candidate, now) {
			return p.Name()
		}
	}
	return ""
}

// Apply keeps the candidates that pass, preserving input order.
func (c Chain) Apply(seeker *models.ProfileSnapshot, candidates []*models.ProfileSnapshot, now time.Time) ([]*models.ProfileSnapshot, Step) {
	step := Step{Initial: len(candidates), DroppedBy: map[string]int{}}
	kept := make([]*models.ProfileSnapshot, 0, len(candidates))
	for _, cand := range candidates {
		if failed := c.firstFailure(seeker, cand, now); failed != "" {
			step.DroppedBy[failed]++
			step.Dropped++
			continue
		}
		kept = append(kept, cand)
	}
	step.Left = len(kept)
	return kept, step
}

func (s Step) fields(name string) []zap.Field {
	fields := []zap.Field{
		zap.String("name", name),
		zap.Int("initial", s.Initial),
		zap.Int("dropped", s.Dropped),
		zap.Int("left", s.Left),
	}
	for pred, n := range s.DroppedBy {
		fields = append(fields, zap.Int("dropped_by_"+pred, n))
	}
	return fields
}

// HardFilter is the seeker's non-negotiable constraints. Only the seeker's
// preferences are checked; the candidate may still decline later.
func HardFilter() Chain {
	return NewChain("hard_filter",
		NewPredicate("age_range", allowAge),
		NewPredicate("gender", allowGender),
		NewPredicate("country", allowCountry),
		NewPredicate("religion", allowReligion),
		NewPredicate("marital_status", allowMaritalStatus),
	)
}

// PassesHardFilters evaluates the hard filter for a single pair.
func PassesHardFilters(seeker, candidate *models.ProfileSnapshot, now time.Time) bool {
	return HardFilter().Passes(seeker, candidate, now)
}

func allowAge(seeker, candidate *models.ProfileSnapshot, now time.Time) bool {
	r := seeker.Preferences.AgeRange
	if !r.IsSet() {
		return true
	}
	return r.Contains(candidate.AgeAt(now))
}

// Cross-gender pairing is the only supported orientation model.
func allowGender(seeker, candidate *models.ProfileSnapshot, _ time.Time) bool {
	return candidate.Gender != seeker.Gender
}

func allowCountry(seeker, candidate *models.ProfileSnapshot, _ time.Time) bool {
	prefs := seeker.Preferences
	if prefs.OpenToInternational {
		return true
	}
	// An empty accepted list means the seeker's own country only.
	if len(prefs.AcceptedCountries) == 0 {
		return candidate.Country == seeker.Country
	}
	return contains(prefs.AcceptedCountries, candidate.Country)
}

func allowReligion(seeker, candidate *models.ProfileSnapshot, _ time.Time) bool {
	accepted := seeker.Preferences.AcceptedReligions
	return len(accepted) == 0 || contains(accepted, candidate.Religion)
}

func allowMaritalStatus(seeker, candidate *models.ProfileSnapshot, _ time.Time) bool {
	accepted := seeker.Preferences.AcceptedMaritalStatuses
	return len(accepted) == 0 || contains(accepted, candidate.MaritalStatus)
}
