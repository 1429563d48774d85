package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
	"github.com/matrimony/backend/internal/storage"
)

// MemoryProfileService keeps profile snapshots in memory, optionally seeded
// from a JSON file.
type MemoryProfileService struct {
	mu       sync.RWMutex
	profiles map[string]*models.ProfileSnapshot // userID -> snapshot
}

func NewMemoryProfileService() *MemoryProfileService {
	return &MemoryProfileService{
		profiles: make(map[string]*models.ProfileSnapshot),
	}
}

// LoadFrom seeds the service from store. A missing file leaves it empty.
func (s *MemoryProfileService) LoadFrom(store *storage.JSONStore) (int, error) {
	return SeedProfiles(context.Background(), store, s)
}

func (s *MemoryProfileService) GetProfile(_ context.Context, userID string) (*models.ProfileSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.profiles[userID]
	if !exists {
		return nil, apperrors.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryProfileService) Upsert(_ context.Context, p *models.ProfileSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.profiles[cp.UserID] = &cp
	return nil
}

// ListProfiles returns copies of every profile, in no particular order.
func (s *MemoryProfileService) ListProfiles(context.Context) ([]*models.ProfileSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ProfileSnapshot, 0, len(s.profiles))
	for _, p := range s.profiles {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryProfileService) ForEachSubmitted(ctx context.Context, batchSize int, fn func(userIDs []string) error) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.profiles))
	for id, p := range s.profiles {
		if p.IsSubmitted {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	for start := 0; start < len(ids); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(ids))
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}
