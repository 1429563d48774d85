package models

import (
	"errors"
	"time"
)

type Tier string

const (
	TierStandard Tier = "standard"
	TierPriority Tier = "priority"
	TierVIP      Tier = "vip"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierStandard, TierPriority, TierVIP:
		return true
	}
	return false
}

// Rank orders tiers for leasing; lower runs first.
func (t Tier) Rank() int {
	switch t {
	case TierPriority:
		return 0
	case TierVIP:
		return 1
	default:
		return 2
	}
}

type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchActive   MatchStatus = "active"
	MatchAccepted MatchStatus = "accepted"
	MatchDeclined MatchStatus = "declined"
	MatchExpired  MatchStatus = "expired"
)

type Action string

const (
	ActionPending  Action = "pending"
	ActionAccepted Action = "accepted"
	ActionDeclined Action = "declined"
)

var (
	ErrNotVIPMatch         = errors.New("only vip matches can be introduced")
	ErrMatchNotPending     = errors.New("match is not pending")
	ErrNotMatchParticipant = errors.New("user is not part of this match")
	ErrMatchClosed         = errors.New("match no longer accepts responses")
	ErrAwaitingIntro       = errors.New("match is awaiting matchmaker introduction")
)

// ScoreBreakdown holds per-factor sub-scores and the weighted total, all in [0, 100].
type ScoreBreakdown struct {
	Values           float64 `json:"values" bson:"values"`
	Lifestyle        float64 `json:"lifestyle" bson:"lifestyle"`
	Location         float64 `json:"location" bson:"location"`
	Religion         float64 `json:"religion" bson:"religion"`
	AgeCompatibility float64 `json:"age_compatibility" bson:"age_compatibility"`
	Vision           float64 `json:"vision" bson:"vision"`
	Preferences      float64 `json:"preferences" bson:"preferences"`
	Total            int     `json:"total" bson:"total"`
}

// Match is one directed proposal from seeker to candidate.
type Match struct {
	ID                string         `json:"id" bson:"_id"`
	SeekerID          string         `json:"seeker_id" bson:"seeker_id"`
	CandidateID       string         `json:"candidate_id" bson:"candidate_id"`
	PairKey           string         `json:"-" bson:"pair_key"`
	Score             int            `json:"score" bson:"score"`
	Breakdown         ScoreBreakdown `json:"breakdown" bson:"breakdown"`
	Tier              Tier           `json:"tier" bson:"tier"`
	Status            MatchStatus    `json:"status" bson:"status"`
	UserAction        Action         `json:"user_action" bson:"user_action"`
	MatchedUserAction Action         `json:"matched_user_action" bson:"matched_user_action"`
	IntroductionNote  string         `json:"introduction_note,omitempty" bson:"introduction_note,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" bson:"updated_at"`
}

// PairKey canonicalizes an unordered pair of user ids.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// Expired reports whether the match's expiry has passed.
func (m *Match) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// Counterpart returns the other participant, or "" if userID is not part of the match.
func (m *Match) Counterpart(userID string) string {
	switch userID {
	case m.SeekerID:
		return m.CandidateID
	case m.CandidateID:
		return m.SeekerID
	}
	return ""
}

// Introduce activates a pending VIP match with a matchmaker note.
func (m *Match) Introduce(note string, now time.Time) error {
	if m.Tier != TierVIP {
		return ErrNotVIPMatch
	}
	if m.Status != MatchPending {
		return ErrMatchNotPending
	}
	m.Status = MatchActive
	m.IntroductionNote = note
	m.UpdatedAt = now
	return nil
}

// Respond records one party's decision and settles the status once it is decided.
func (m *Match) Respond(userID string, accept bool, now time.Time) error {
	switch m.Status {
	case MatchPending, MatchActive:
	default:
		return ErrMatchClosed
	}
	if m.Expired(now) {
		return ErrMatchClosed
	}
	// VIP proposals are not visible to the parties until introduced.
	if m.Tier == TierVIP && m.Status == MatchPending {
		return ErrAwaitingIntro
	}

	action := ActionDeclined
	if accept {
		action = ActionAccepted
	}
	switch userID {
	case m.SeekerID:
		m.UserAction = action
	case m.CandidateID:
		m.MatchedUserAction = action
	default:
		return ErrNotMatchParticipant
	}

	switch {
	case m.UserAction == ActionDeclined || m.MatchedUserAction == ActionDeclined:
		m.Status = MatchDeclined
	case m.UserAction == ActionAccepted && m.MatchedUserAction == ActionAccepted:
		m.Status = MatchAccepted
		// Accepted matches are kept; only undecided ones expire.
		m.ExpiresAt = nil
	}
	m.UpdatedAt = now
	return nil
}
