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

// MemoryMatchService mirrors the Mongo match store: unique pair keys and
// expiry on read. With a JSONStore attached every change is written through.
type MemoryMatchService struct {
	mu      sync.RWMutex
	matches map[string]*models.Match // matchID -> match
	byPair  map[string]string        // pairKey -> matchID
	store   *storage.JSONStore
	now     func() time.Time
}

func NewMemoryMatchService(now func() time.Time) *MemoryMatchService {
	if now == nil {
		now = time.Now
	}
	return &MemoryMatchService{
		matches: make(map[string]*models.Match),
		byPair:  make(map[string]string),
		now:     now,
	}
}

// Persist loads existing matches from store and writes future changes to it.
func (s *MemoryMatchService) Persist(store *storage.JSONStore) error {
	var saved []*models.Match
	if err := store.Load(&saved); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range saved {
		if m == nil {
			continue
		}
		s.matches[m.ID] = m
		s.byPair[m.PairKey] = m.ID
	}
	s.store = store
	return nil
}

func (s *MemoryMatchService) CreateMatch(_ context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	if m.PairKey == "" {
		m.PairKey = models.PairKey(m.SeekerID, m.CandidateID)
	}
	if _, exists := s.byPair[m.PairKey]; exists {
		return apperrors.ErrDuplicatePair
	}

	cp := *m
	if err := s.save(&cp); err != nil {
		return err
	}
	s.matches[cp.ID] = &cp
	s.byPair[cp.PairKey] = cp.ID
	return nil
}

func (s *MemoryMatchService) GetMatch(_ context.Context, id string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.matches[id]
	if !exists || m.Expired(s.now()) {
		return nil, apperrors.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryMatchService) GetMatchByPair(ctx context.Context, a, b string) (*models.Match, error) {
	s.mu.RLock()
	id, exists := s.byPair[models.PairKey(a, b)]
	s.mu.RUnlock()
	if !exists {
		return nil, apperrors.ErrMatchNotFound
	}
	return s.GetMatch(ctx, id)
}

func (s *MemoryMatchService) PairedUserIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]string, 0)
	for _, m := range s.matches {
		if m.Expired(now) {
			continue
		}
		if other := m.Counterpart(userID); other != "" {
			out = append(out, other)
		}
	}
	return out, nil
}

func (s *MemoryMatchService) ListForUser(_ context.Context, userID string) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]*models.Match, 0)
	for _, m := range s.matches {
		if m.Expired(now) || m.Counterpart(userID) == "" {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryMatchService) Introduce(_ context.Context, id, note string, now time.Time) (*models.Match, error) {
	return s.update(id, func(m *models.Match) error {
		return m.Introduce(note, now)
	})
}

func (s *MemoryMatchService) Respond(_ context.Context, id, userID string, accept bool, now time.Time) (*models.Match, error) {
	return s.update(id, func(m *models.Match) error {
		return m.Respond(userID, accept, now)
	})
}

func (s *MemoryMatchService) update(id string, fn func(*models.Match) error) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.matches[id]
	if !exists || m.Expired(s.now()) {
		return nil, apperrors.ErrMatchNotFound
	}
	cp := *m
	if err := fn(&cp); err != nil {
		return nil, transitionError(err)
	}
	if err := s.save(&cp); err != nil {
		return nil, err
	}
	s.matches[id] = &cp
	out := cp
	return &out, nil
}

// sweep drops expired matches, as the TTL index does. Caller holds the write lock.
func (s *MemoryMatchService) sweep() {
	now := s.now()
	for id, m := range s.matches {
		if m.Expired(now) {
			delete(s.matches, id)
			delete(s.byPair, m.PairKey)
		}
	}
}

// save writes the current matches with next in place to the JSON store.
// The map is only changed once this succeeds. Caller holds the write lock.
func (s *MemoryMatchService) save(next *models.Match) error {
	if s.store == nil {
		return nil
	}
	all := make([]*models.Match, 0, len(s.matches)+1)
	for id, m := range s.matches {
		if id != next.ID {
			all = append(all, m)
		}
	}
	all = append(all, next)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return s.store.Save(all)
}
