package matching

import (
	"fmt"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/matrimony/backend/internal/models"
)

// Rule types understood by NewVIPFilter.
const (
	RuleVerified          = "verified"
	RuleDealBreakers      = "deal_breakers"
	RuleMutualPreferences = "mutual_preferences"
	RuleMaxAgeGap         = "max_age_gap"
	RuleSameCityFirst     = "same_city_first"
)

// RuleConfig is one configured VIP rule. Params are decoded per type.
type RuleConfig struct {
	Type   string                 `mapstructure:"type"`
	Params map[string]interface{} `mapstructure:"params"`
}

// DefaultVIPRules is used when no rules are configured. Reorderers are
// opt-in: the default keeps retrieval order as the only tie-break.
func DefaultVIPRules() []RuleConfig {
	return []RuleConfig{
		{Type: RuleVerified},
		{Type: RuleDealBreakers},
	}
}

// Reorderer changes candidate order without dropping anyone. Scoring sorts
// stably afterwards, so a configured reorderer replaces retrieval order as
// the tie-break among equal scores.
type Reorderer interface {
	Name() string
	Reorder(seeker *models.ProfileSnapshot, candidates []*models.ProfileSnapshot) []*models.ProfileSnapshot
}

// VIPFilter is the extra elimination and reordering pass for VIP curation.
type VIPFilter struct {
	chain      Chain
	reorderers []Reorderer
}

type mutualParams struct {
	Age           bool `mapstructure:"age"`
	Religion      bool `mapstructure:"religion"`
	Country       bool `mapstructure:"country"`
	MaritalStatus bool `mapstructure:"marital_status"`
}

type ageGapParams struct {
	Years int `mapstructure:"years"`
}

// NewVIPFilter builds the filter from rule configs in the given order.
func NewVIPFilter(rules []RuleConfig) (*VIPFilter, error) {
	f := &VIPFilter{chain: NewChain("vip_filter")}

	for i, rule := range rules {
		switch rule.Type {
		case RuleVerified:
			f.chain = f.chain.With(NewPredicate(RuleVerified, allowVerified))

		case RuleDealBreakers:
			f.chain = f.chain.With(NewPredicate(RuleDealBreakers, allowDealBreakers))

		case RuleMutualPreferences:
			params := mutualParams{Age: true, Religion: true, Country: true, MaritalStatus: true}
			if err := decodeParams(rule.Params, &params); err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Type, err)
			}
			f.chain = f.chain.With(mutualPreferences(params))

		case RuleMaxAgeGap:
			var params ageGapParams
			if err := decodeParams(rule.Params, &params); err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Type, err)
			}
			if params.Years <= 0 {
				return nil, fmt.Errorf("rule %d (%s): years must be positive", i, rule.Type)
			}
			f.chain = f.chain.With(maxAgeGap(params.Years))

		case RuleSameCityFirst:
			f.reorderers = append(f.reorderers, sameCityFirst{})

		default:
			return nil, fmt.Errorf("rule %d: unknown type %q", i, rule.Type)
		}
	}

	return f, nil
}

// Apply drops candidates failing any VIP predicate, then runs the reorderers.
func (f *VIPFilter) Apply(seeker *models.ProfileSnapshot, candidates []*models.ProfileSnapshot, now time.Time) ([]*models.ProfileSnapshot, Step) {
	kept, step := f.chain.Apply(seeker, candidates, now)
	for _, r := range f.reorderers {
		kept = r.Reorder(seeker, kept)
	}
	return kept, step
}

func decodeParams(in map[string]interface{}, out interface{}) error {
	if len(in) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func allowVerified(_, candidate *models.ProfileSnapshot, _ time.Time) bool {
	return candidate.Verified
}

func allowDealBreakers(seeker, candidate *models.ProfileSnapshot, _ time.Time) bool {
	for _, attr := range candidate.Lifestyle {
		if contains(seeker.Preferences.LifestyleDealBreakers, attr) {
			return false
		}
	}
	return true
}

// mutualPreferences re-checks the hard filter from the candidate's side.
func mutualPreferences(p mutualParams) Predicate {
	return NewPredicate(RuleMutualPreferences, func(seeker, candidate *models.ProfileSnapshot, now time.Time) bool {
		if p.Age && !allowAge(candidate, seeker, now) {
			return false
		}
		if p.Country && !allowCountry(candidate, seeker, now) {
			return false
		}
		if p.Religion && !allowReligion(candidate, seeker, now) {
			return false
		}
		if p.MaritalStatus && !allowMaritalStatus(candidate, seeker, now) {
			return false
		}
		return true
	})
}

func maxAgeGap(years int) Predicate {
	return NewPredicate(RuleMaxAgeGap, func(seeker, candidate *models.ProfileSnapshot, now time.Time) bool {
		gap := seeker.AgeAt(now) - candidate.AgeAt(now)
		if gap < 0 {
			gap = -gap
		}
		return gap <= years
	})
}

type sameCityFirst struct{}

func (sameCityFirst) Name() string { return RuleSameCityFirst }

func (sameCityFirst) Reorder(seeker *models.ProfileSnapshot, candidates []*models.ProfileSnapshot) []*models.ProfileSnapshot {
	if seeker.City == "" {
		return candidates
	}
	out := append([]*models.ProfileSnapshot(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].City == seeker.City && out[j].City != seeker.City
	})
	return out
}
