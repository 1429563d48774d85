package models

import "time"

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// AgeRange is an inclusive range of whole years. A zero Max means no upper bound.
type AgeRange struct {
	Min int `json:"min" bson:"min"`
	Max int `json:"max" bson:"max"`
}

// IsSet reports whether the range constrains anything.
func (r AgeRange) IsSet() bool {
	return r.Min > 0 || r.Max > 0
}

// Contains reports whether age lies in the range.
func (r AgeRange) Contains(age int) bool {
	if age < r.Min {
		return false
	}
	if r.Max > 0 && age > r.Max {
		return false
	}
	return true
}

// Preferences are the seeker's stated partner preferences.
type Preferences struct {
	AgeRange                AgeRange `json:"age_range" bson:"age_range"`
	AcceptedCountries       []string `json:"accepted_countries" bson:"accepted_countries,omitempty"`
	AcceptedReligions       []string `json:"accepted_religions" bson:"accepted_religions,omitempty"`
	AcceptedMaritalStatuses []string `json:"accepted_marital_statuses" bson:"accepted_marital_statuses,omitempty"`
	OpenToInternational     bool     `json:"open_to_international" bson:"open_to_international"`
	LifestyleDealBreakers   []string `json:"lifestyle_deal_breakers" bson:"lifestyle_deal_breakers,omitempty"`
}

// ProfileSnapshot is the read-only view of a member profile used for matching.
// It is stored in Mongo keyed by user id.
type ProfileSnapshot struct {
	UserID        string    `json:"user_id" bson:"user_id"`
	Gender        string    `json:"gender" bson:"gender"`
	DOB           time.Time `json:"dob" bson:"dob"`
	Country       string    `json:"country" bson:"country"`
	City          string    `json:"city" bson:"city,omitempty"`
	MaritalStatus string    `json:"marital_status" bson:"marital_status,omitempty"`
	Occupation    string    `json:"occupation" bson:"occupation,omitempty"`
	Education     string    `json:"education" bson:"education,omitempty"`
	Religion      string    `json:"religion" bson:"religion,omitempty"`

	// Lifestyle holds background/lifestyle attributes such as "smokes" or "drinks".
	Lifestyle         []string `json:"lifestyle" bson:"lifestyle,omitempty"`
	CoreValues        []string `json:"core_values" bson:"core_values,omitempty"`
	NonNegotiables    []string `json:"non_negotiables" bson:"non_negotiables,omitempty"`
	PersonalityTraits []string `json:"personality_traits" bson:"personality_traits,omitempty"`

	Preferences Preferences `json:"preferences" bson:"preferences"`

	IsSubmitted bool      `json:"is_submitted" bson:"is_submitted"`
	Verified    bool      `json:"verified" bson:"verified"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// AgeAt returns the age in whole years at the given instant. A birthday counts
// only once its month and day have been reached.
func (p *ProfileSnapshot) AgeAt(now time.Time) int {
	return AgeAt(p.DOB, now)
}

// AgeAt computes floor-integer years between dob and now.
func AgeAt(dob, now time.Time) int {
	d := dob.UTC()
	n := now.UTC()
	age := n.Year() - d.Year()
	if n.Month() < d.Month() || (n.Month() == d.Month() && n.Day() < d.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// OppositeGender returns the counterpart gender for candidate pooling, or ""
// when the declared gender is not one of the supported values.
func OppositeGender(gender string) string {
	switch gender {
	case GenderMale:
		return GenderFemale
	case GenderFemale:
		return GenderMale
	default:
		return ""
	}
}
