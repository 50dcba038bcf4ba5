package repository

import (
	"context"
	"errors"

	"travel-cms/backend/internal/user/domain"
)

// ErrEmailTaken is returned by Create when another user already owns the email.
var ErrEmailTaken = errors.New("email already taken")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id string) error
}
