package candidates

import (
	"context"
	"sort"

	"github.com/matrimony/backend/internal/models"
)

// ProfileLister is implemented by in-memory profile stores.
type ProfileLister interface {
	ListProfiles(ctx context.Context) ([]*models.ProfileSnapshot, error)
}

// MemorySource applies the scan predicates over an in-memory store.
type MemorySource struct {
	profiles ProfileLister
	limit    int
}

func NewMemorySource(profiles ProfileLister, limit int) *MemorySource {
	return &MemorySource{profiles: profiles, limit: limit}
}

func (s *MemorySource) Name() string { return "memory" }

func (s *MemorySource) Healthy(context.Context) bool { return true }

func (s *MemorySource) Candidates(ctx context.Context, seeker *models.ProfileSnapshot) ([]*models.ProfileSnapshot, error) {
	all, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}

	gender := models.OppositeGender(seeker.Gender)
	out := make([]*models.ProfileSnapshot, 0)
	for _, p := range all {
		if p.Gender != gender || !p.IsSubmitted || p.UserID == seeker.UserID {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if s.limit > 0 && len(out) > s.limit {
		out = out[:s.limit]
	}
	return out, nil
}
