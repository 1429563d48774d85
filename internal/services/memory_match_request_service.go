package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
)

// MemoryMatchRequestService is an in-process queue with the same lease
// semantics as the Mongo queue.
type MemoryMatchRequestService struct {
	mu       sync.Mutex
	requests map[string]*models.MatchRequest
	byDedup  map[string]string // dedupKey -> requestID
}

func NewMemoryMatchRequestService() *MemoryMatchRequestService {
	return &MemoryMatchRequestService{
		requests: make(map[string]*models.MatchRequest),
		byDedup:  make(map[string]string),
	}
}

func (s *MemoryMatchRequestService) Enqueue(_ context.Context, r *models.MatchRequest) (*models.MatchRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.DedupKey != "" {
		if id, exists := s.byDedup[r.DedupKey]; exists {
			cp := *s.requests[id]
			return &cp, false, nil
		}
		s.byDedup[r.DedupKey] = r.ID
	}

	cp := *r
	s.requests[r.ID] = &cp
	return r, true, nil
}

func (s *MemoryMatchRequestService) Get(_ context.Context, id string) (*models.MatchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.requests[id]
	if !exists {
		return nil, apperrors.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryMatchRequestService) Lease(_ context.Context, now time.Time, lease time.Duration) (*models.MatchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runnable := make([]*models.MatchRequest, 0)
	for _, r := range s.requests {
		if leasable(r, now) {
			runnable = append(runnable, r)
		}
	}
	if len(runnable) == 0 {
		return nil, ErrQueueEmpty
	}

	sort.Slice(runnable, func(i, j int) bool {
		a, b := runnable[i], runnable[j]
		if a.TierRank != b.TierRank {
			return a.TierRank < b.TierRank
		}
		if !a.QueuedAt.Equal(b.QueuedAt) {
			return a.QueuedAt.Before(b.QueuedAt)
		}
		return a.ID < b.ID
	})

	next := runnable[0]
	if next.Status == models.RequestProcessing {
		// Crashed worker: take the job over as a fresh attempt.
		next.Status = models.RequestQueued
	}
	if err := next.Start(now, lease); err != nil {
		return nil, err
	}
	cp := *next
	return &cp, nil
}

func leasable(r *models.MatchRequest, now time.Time) bool {
	switch r.Status {
	case models.RequestQueued:
		return !r.AvailableAt.After(now)
	case models.RequestProcessing:
		return r.LeaseExpiresAt != nil && !r.LeaseExpiresAt.After(now) && r.Attempts < r.MaxAttempts
	}
	return false
}

func (s *MemoryMatchRequestService) Finish(_ context.Context, r *models.MatchRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.requests[r.ID]
	if !exists {
		return apperrors.ErrRequestNotFound
	}
	if current.Status != models.RequestProcessing || current.Attempts != r.Attempts {
		return ErrLeaseLost
	}
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *MemoryMatchRequestService) Cancel(_ context.Context, id string, now time.Time) (*models.MatchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.requests[id]
	if !exists {
		return nil, apperrors.ErrRequestNotFound
	}
	if err := r.Cancel(now); err != nil {
		return nil, cancelRejection(r)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryMatchRequestService) ReapExpired(_ context.Context, now time.Time) ([]*models.MatchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := make([]*models.MatchRequest, 0)
	for _, r := range s.requests {
		if r.Status != models.RequestProcessing || r.LeaseExpiresAt == nil || r.LeaseExpiresAt.After(now) {
			continue
		}
		if r.Attempts < r.MaxAttempts {
			continue
		}
		expireLease(r, now)
		cp := *r
		reaped = append(reaped, &cp)
	}
	return reaped, nil
}
