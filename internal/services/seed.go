package services

import (
	"context"
	"fmt"

	"github.com/matrimony/backend/internal/models"
	"github.com/matrimony/backend/internal/storage"
)

// ProfileWriter is a profile store that can be seeded.
type ProfileWriter interface {
	Upsert(ctx context.Context, p *models.ProfileSnapshot) error
}

// AccountWriter is an account store that can be seeded.
type AccountWriter interface {
	Upsert(ctx context.Context, acc *models.Account) error
}

// SeedProfiles upserts every profile in store into dst and returns how many were written.
func SeedProfiles(ctx context.Context, store *storage.JSONStore, dst ProfileWriter) (int, error) {
	return seedFrom(ctx, store, dst.Upsert)
}

// SeedAccounts upserts every account in store into dst and returns how many were written.
func SeedAccounts(ctx context.Context, store *storage.JSONStore, dst AccountWriter) (int, error) {
	return seedFrom(ctx, store, dst.Upsert)
}

// seedFrom loads a JSON array and upserts its entries in file order. Null
// entries are skipped; a missing file seeds nothing.
func seedFrom[T any](ctx context.Context, store *storage.JSONStore, upsert func(context.Context, *T) error) (int, error) {
	var seed []*T
	if err := store.Load(&seed); err != nil {
		return 0, err
	}

	n := 0
	for i, v := range seed {
		if v == nil {
			continue
		}
		if err := upsert(ctx, v); err != nil {
			return n, fmt.Errorf("%s entry %d: %w", store.Path(), i, err)
		}
		n++
	}
	return n, nil
}
