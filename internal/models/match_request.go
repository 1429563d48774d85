package models

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

type RequestStatus string

const (
	RequestQueued       RequestStatus = "queued"
	RequestProcessing   RequestStatus = "processing"
	RequestCompleted    RequestStatus = "completed"
	RequestFailed       RequestStatus = "failed"
	RequestCancelled    RequestStatus = "cancelled"
	RequestNoCandidates RequestStatus = "no_candidates"
)

const (
	DefaultMaxAttempts = 3
	MaxLastErrorLength = 2000
)

var ErrInvalidTransition = errors.New("invalid match request transition")

// MatchRequest is one attempt to run the matching algorithm for a user.
type MatchRequest struct {
	ID          string        `json:"id" bson:"_id"`
	RequesterID string        `json:"requester_id" bson:"requester_id"`
	Tier        Tier          `json:"tier" bson:"tier"`
	TierRank    int           `json:"-" bson:"tier_rank"`
	Status      RequestStatus `json:"status" bson:"status"`
	PaymentID   string        `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	DedupKey    string        `json:"-" bson:"dedup_key,omitempty"`

	MatchID  string   `json:"match_id,omitempty" bson:"match_id,omitempty"`
	MatchIDs []string `json:"match_ids,omitempty" bson:"match_ids,omitempty"`

	CandidatesConsidered int `json:"candidates_considered" bson:"candidates_considered"`
	CandidatesFiltered   int `json:"candidates_filtered" bson:"candidates_filtered"`
	TopScore             int `json:"top_score" bson:"top_score"`

	Attempts    int    `json:"attempts" bson:"attempts"`
	MaxAttempts int    `json:"max_attempts" bson:"max_attempts"`
	LastError   string `json:"last_error,omitempty" bson:"last_error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty" bson:"error_kind,omitempty"`
	Retryable   bool   `json:"retryable" bson:"retryable"`

	QueuedAt       time.Time  `json:"queued_at" bson:"queued_at"`
	AvailableAt    time.Time  `json:"-" bson:"available_at"`
	StartedAt      *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	LeaseExpiresAt *time.Time `json:"-" bson:"lease_expires_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// Outcome carries what the orchestrator reports back for the job record.
type Outcome struct {
	MatchIDs             []string
	CandidatesConsidered int
	CandidatesFiltered   int
	TopScore             int
}

// NewMatchRequest returns a queued request.
func NewMatchRequest(id, requesterID string, tier Tier, now time.Time) *MatchRequest {
	return &MatchRequest{
		ID:          id,
		RequesterID: requesterID,
		Tier:        tier,
		TierRank:    tier.Rank(),
		Status:      RequestQueued,
		MaxAttempts: DefaultMaxAttempts,
		QueuedAt:    now,
		AvailableAt: now,
	}
}

// Terminal reports whether no further transition is possible.
func (r *MatchRequest) Terminal() bool {
	switch r.Status {
	case RequestCompleted, RequestCancelled, RequestNoCandidates:
		return true
	case RequestFailed:
		return !r.CanRetry()
	}
	return false
}

// CanRetry reports whether a failed request may be re-queued.
func (r *MatchRequest) CanRetry() bool {
	return r.Status == RequestFailed && r.Retryable && r.Attempts < r.MaxAttempts
}

// Start moves a queued request to processing.
func (r *MatchRequest) Start(now time.Time, lease time.Duration) error {
	if r.Status != RequestQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RequestProcessing)
	}
	r.Status = RequestProcessing
	r.StartedAt = &now
	r.Attempts++
	if lease > 0 {
		exp := now.Add(lease)
		r.LeaseExpiresAt = &exp
	}
	return nil
}

// Complete records a successful run.
func (r *MatchRequest) Complete(out Outcome, now time.Time) error {
	if r.Status != RequestProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RequestCompleted)
	}
	r.Status = RequestCompleted
	r.apply(out)
	r.CompletedAt = &now
	r.LeaseExpiresAt = nil
	return nil
}

// NoCandidates records an exhausted run. It is an expected outcome, not an error.
func (r *MatchRequest) NoCandidates(out Outcome, now time.Time) error {
	if r.Status != RequestProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RequestNoCandidates)
	}
	r.Status = RequestNoCandidates
	r.apply(out)
	r.CompletedAt = &now
	r.LeaseExpiresAt = nil
	return nil
}

// Fail records a failed run. lastError is truncated to MaxLastErrorLength characters.
func (r *MatchRequest) Fail(cause error, retryable bool, now time.Time) error {
	if r.Status != RequestProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RequestFailed)
	}
	r.Status = RequestFailed
	r.Retryable = retryable
	if cause != nil {
		r.LastError = TruncateError(cause.Error())
	}
	r.LeaseExpiresAt = nil
	if !r.CanRetry() {
		r.CompletedAt = &now
	}
	return nil
}

// Requeue moves a retryable failed request back to the queue, available after delay.
func (r *MatchRequest) Requeue(now time.Time, delay time.Duration) error {
	if !r.CanRetry() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RequestQueued)
	}
	r.Status = RequestQueued
	r.AvailableAt = now.Add(delay)
	return nil
}

// Cancel withdraws a request that has not been picked up yet.
func (r *MatchRequest) Cancel(now time.Time) error {
	if r.Status != RequestQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RequestCancelled)
	}
	r.Status = RequestCancelled
	r.CompletedAt = &now
	return nil
}

func (r *MatchRequest) apply(out Outcome) {
	r.MatchIDs = append([]string(nil), out.MatchIDs...)
	if len(out.MatchIDs) > 0 {
		r.MatchID = out.MatchIDs[0]
	}
	r.CandidatesConsidered = out.CandidatesConsidered
	r.CandidatesFiltered = out.CandidatesFiltered
	r.TopScore = out.TopScore
}

// TruncateError bounds an error message to MaxLastErrorLength characters.
func TruncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxLastErrorLength {
		return msg
	}
	return string([]rune(msg)[:MaxLastErrorLength])
}
