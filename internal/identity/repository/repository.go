package repository

import (
	"context"

	"travel-cms/backend/internal/identity/domain"
)

// Repository defines persistence for identities.
type Repository interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
	// DeleteByUser removes every identity of userID; a user without identities is not an error.
	DeleteByUser(ctx context.Context, userID string) error
}
