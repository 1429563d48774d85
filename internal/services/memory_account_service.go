package services

import (
	"context"
	"sync"

	"github.com/matrimony/backend/internal/models"
	"github.com/matrimony/backend/internal/storage"
)

type MemoryAccountService struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

func NewMemoryAccountService() *MemoryAccountService {
	return &MemoryAccountService{
		accounts: make(map[string]*models.Account),
	}
}

// LoadFrom seeds the service from store. A missing file leaves it empty.
func (s *MemoryAccountService) LoadFrom(store *storage.JSONStore) (int, error) {
	return SeedAccounts(context.Background(), store, s)
}

func (s *MemoryAccountService) Upsert(_ context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *acc
	s.accounts[cp.UserID] = &cp
	return nil
}

// VisibleUserIDs keeps the input order.
func (s *MemoryAccountService) VisibleUserIDs(_ context.Context, userIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if s.accounts[id].Visible() {
			out = append(out, id)
		}
	}
	return out, nil
}
