package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"travel-cms/backend/internal/invitation/domain"
)

// MemoryRepository keeps invitations in process memory. All conditional operations run under one
// mutex, so they are atomic with respect to each other.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Invitation
}

// NewMemoryRepository returns an empty in-memory invitation store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Invitation)}
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetActiveByEmail(ctx context.Context, email string, now time.Time) (*domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeByEmailLocked(email, now).Clone(), nil
}

func (r *MemoryRepository) activeByEmailLocked(email string, now time.Time) *domain.Invitation {
	for _, inv := range r.byID {
		if inv.Email == email && inv.ActiveAt(now) {
			return inv
		}
	}
	return nil
}

func (r *MemoryRepository) ListActive(ctx context.Context, cutoff time.Time) ([]*domain.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Invitation, 0, len(r.byID))
	for _, inv := range r.byID {
		if !inv.Used && inv.ExpiresAt.After(cutoff) {
			out = append(out, inv.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository) List(ctx context.Context, f Filter, p Page, now time.Time) ([]*domain.Invitation, int, error) {
	r.mu.RLock()
	matched := make([]*domain.Invitation, 0)
	email := strings.ToLower(f.Email)
	for _, inv := range r.byID {
		if f.Status != "" && inv.StatusAt(now) != f.Status {
			continue
		}
		if f.Role != "" && inv.Role != f.Role {
			continue
		}
		if f.InvitedBy != "" && inv.InvitedBy != f.InvitedBy {
			continue
		}
		if email != "" && !strings.Contains(inv.Email, email) {
			continue
		}
		matched = append(matched, inv.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if p.Offset >= total {
		return []*domain.Invitation{}, total, nil
	}
	end := total
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return matched[p.Offset:end], total, nil
}

func (r *MemoryRepository) Insert(ctx context.Context, inv *domain.Invitation, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeByEmailLocked(inv.Email, now) != nil {
		return ErrActiveInvitationExists
	}
	r.byID[inv.ID] = inv.Clone()
	return nil
}

func (r *MemoryRepository) UpdateIfUnused(ctx context.Context, id, expectedHash string, p Patch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateIfUnusedLocked(id, expectedHash, p), nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, id string, p Patch, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok || inv.Used {
		return false, nil
	}
	for _, other := range r.byID {
		if other.ID != id && other.Email == inv.Email && other.ActiveAt(now) {
			return false, ErrActiveInvitationExists
		}
	}
	return r.updateIfUnusedLocked(id, "", p), nil
}

func (r *MemoryRepository) updateIfUnusedLocked(id, expectedHash string, p Patch) bool {
	inv, ok := r.byID[id]
	if !ok || inv.Used {
		return false
	}
	if expectedHash != "" && inv.TokenHash != expectedHash {
		return false
	}
	if p.TokenHash != "" {
		inv.TokenHash = p.TokenHash
		inv.TokenSalt = p.TokenSalt
	}
	if !p.ExpiresAt.IsZero() {
		inv.ExpiresAt = p.ExpiresAt
	}
	if p.MarkUsed {
		usedAt := p.UsedAt
		inv.Used = true
		inv.UsedAt = &usedAt
		inv.UsedBy = p.UsedBy
	}
	inv.UpdatedAt = p.UpdatedAt
	return true
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok || inv.Used {
		return false, nil
	}
	delete(r.byID, id)
	return true, nil
}
