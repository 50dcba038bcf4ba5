package repository

import (
	"context"
	"sync"

	"travel-cms/backend/internal/identity/domain"
)

// MemoryRepository keeps identities in process memory.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.Identity
}

// NewMemoryRepository returns an empty in-memory identity repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Identity)}
}

func (r *MemoryRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.m {
		if i.UserID == userID && i.Provider == provider {
			c := *i
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *i
	r.m[i.ID] = &c
	return nil
}

func (r *MemoryRepository) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, i := range r.m {
		if i.UserID == userID {
			delete(r.m, id)
		}
	}
	return nil
}
