package repository

import (
	"context"
	"errors"
	"time"

	"travel-cms/backend/internal/invitation/domain"
)

// ErrActiveInvitationExists is returned by Insert when the email already has an unused, unexpired invitation.
var ErrActiveInvitationExists = errors.New("active invitation exists for email")

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status    domain.Status
	Role      string
	Email     string // case-insensitive substring
	InvitedBy string
}

// Page selects a window of List results ordered newest first.
type Page struct {
	Limit  int
	Offset int
}

// Patch is applied by UpdateIfUnused. Empty TokenHash and zero ExpiresAt leave those columns alone.
type Patch struct {
	TokenHash string
	TokenSalt string
	ExpiresAt time.Time
	MarkUsed  bool
	UsedAt    time.Time
	UsedBy    string
	UpdatedAt time.Time
}

// Repository is the invitation record store. Lookups return (nil, nil) when no row matches.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Invitation, error)
	// GetActiveByEmail returns the unused invitation for email that is unexpired at now.
	GetActiveByEmail(ctx context.Context, email string, now time.Time) (*domain.Invitation, error)
	// ListActive returns every unused invitation expiring after cutoff.
	ListActive(ctx context.Context, cutoff time.Time) ([]*domain.Invitation, error)
	// List returns one page of invitations matching f and the total number of matches.
	List(ctx context.Context, f Filter, p Page, now time.Time) ([]*domain.Invitation, int, error)
	// Insert stores inv unless an active invitation already exists for inv.Email at now.
	Insert(ctx context.Context, inv *domain.Invitation, now time.Time) error
	// UpdateIfUnused applies p to invitation id only while it is unused and, when expectedHash is
	// non-empty, still carries that fingerprint hash. It reports whether the row changed.
	UpdateIfUnused(ctx context.Context, id, expectedHash string, p Patch) (bool, error)
	// Rotate applies p to unused invitation id unless another invitation for the same email is
	// active at now, in which case it returns ErrActiveInvitationExists. It is serialized with Insert
	// per email and reports whether the row changed.
	Rotate(ctx context.Context, id string, p Patch, now time.Time) (bool, error)
	// Delete removes invitation id if it is unused and reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)
}
