package services

import (
	"errors"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
)

var (
	ErrMatchChanged = apperrors.New(apperrors.KindConflict, "match was modified concurrently")
	ErrLeaseLost    = errors.New("match request lease lost")
	ErrQueueEmpty   = errors.New("no match requests available")
)

// transitionError classifies a rejected match transition for the caller.
func transitionError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotMatchParticipant):
		return apperrors.Wrap(err, apperrors.KindForbidden, "not a participant")
	case errors.Is(err, models.ErrNotVIPMatch),
		errors.Is(err, models.ErrMatchNotPending),
		errors.Is(err, models.ErrMatchClosed),
		errors.Is(err, models.ErrAwaitingIntro):
		return apperrors.Wrap(err, apperrors.KindConflict, "match transition rejected")
	}
	return err
}

// UniquePairs counts matches once per unordered pair.
func UniquePairs(matches []*models.Match) int {
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[models.PairKey(m.SeekerID, m.CandidateID)] = struct{}{}
	}
	return len(seen)
}
