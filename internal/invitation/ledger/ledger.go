// Package ledger owns the lifecycle of invitation records: issuing, rotating, cancelling,
// validating and redeeming them. Authorization and abuse controls live in the layers above.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"travel-cms/backend/internal/invitation/domain"
	"travel-cms/backend/internal/invitation/repository"
	"travel-cms/backend/internal/security"
)

const (
	// DefaultValidity applies when a caller does not ask for a specific validity.
	DefaultValidity = 72 * time.Hour
	// DefaultExpiredLookback is how long after expiry a presented secret still reports Expired
	// rather than NotFound.
	DefaultExpiredLookback = 7 * 24 * time.Hour

	maxMetadataEntries  = 20
	maxMetadataKeyLen   = 64
	maxMetadataValueLen = 512
)

// Config tunes a Ledger. Zero values take the package defaults.
type Config struct {
	DefaultValidity time.Duration
	ExpiredLookback time.Duration
}

// CreateParams describes a new invitation. Email must already have passed the issuance guard.
type CreateParams struct {
	Email     string
	Role      string
	InvitedBy string
	TripID    string
	Metadata  map[string]string
	Validity  time.Duration
}

// Issued is a freshly minted or rotated invitation together with its plaintext secret.
// The secret exists only here; the record carries its fingerprint.
type Issued struct {
	Invitation *domain.Invitation
	Secret     string
}

// Ledger is the invitation record lifecycle over a Repository and the token codec.
type Ledger struct {
	repo     repository.Repository
	codec    *security.InviteTokenCodec
	validity time.Duration
	lookback time.Duration
	logger   *slog.Logger
}

// New returns a Ledger. codec supplies both secrets and the clock. logger may be nil.
func New(repo repository.Repository, codec *security.InviteTokenCodec, cfg Config, logger *slog.Logger) *Ledger {
	if cfg.DefaultValidity <= 0 {
		cfg.DefaultValidity = DefaultValidity
	}
	if cfg.ExpiredLookback < 0 {
		cfg.ExpiredLookback = 0
	} else if cfg.ExpiredLookback == 0 {
		cfg.ExpiredLookback = DefaultExpiredLookback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{repo: repo, codec: codec, validity: cfg.DefaultValidity, lookback: cfg.ExpiredLookback, logger: logger}
}

// Now is the ledger clock.
func (l *Ledger) Now() time.Time {
	return l.codec.Now()
}

func fatal(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrFatal, op, err)
}

// mint generates a secret for validity, translating codec failures into error kinds.
func (l *Ledger) mint(validity time.Duration) (string, security.Fingerprint, time.Time, error) {
	if validity == 0 {
		validity = l.validity
	}
	secret, fp, exp, err := l.codec.Generate(validity)
	switch {
	case errors.Is(err, security.ErrInviteValidity):
		return "", security.Fingerprint{}, time.Time{}, fmt.Errorf("%w: validity must be between %s and %s",
			domain.ErrInvalidInput, security.MinInviteValidity, security.MaxInviteValidity)
	case err != nil:
		return "", security.Fingerprint{}, time.Time{}, fatal("generate token", err)
	}
	return secret, fp, exp, nil
}

// Create mints a secret and persists a pending invitation for p.Email.
func (l *Ledger) Create(ctx context.Context, p CreateParams) (*Issued, error) {
	if err := CheckParams(p); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	secret, fp, exp, err := l.mint(p.Validity)
	if err != nil {
		return nil, err
	}
	now := l.codec.Now()
	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		Email:     email,
		Role:      p.Role,
		InvitedBy: p.InvitedBy,
		TripID:    strings.TrimSpace(p.TripID),
		Metadata:  p.Metadata,
		TokenHash: fp.Hash,
		TokenSalt: fp.Salt,
		ExpiresAt: exp,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.repo.Insert(ctx, inv, now); err != nil {
		if errors.Is(err, repository.ErrActiveInvitationExists) {
			return nil, fmt.Errorf("%w: an active invitation already exists for this email", domain.ErrConflict)
		}
		return nil, fatal("insert invitation", err)
	}
	return &Issued{Invitation: inv.Clone(), Secret: secret}, nil
}

// Get returns invitation id or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (*domain.Invitation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	inv, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, fatal("get invitation", err)
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	return inv, nil
}

// ActiveByEmail returns the active invitation for a normalized email, or nil.
func (l *Ledger) ActiveByEmail(ctx context.Context, email string) (*domain.Invitation, error) {
	inv, err := l.repo.GetActiveByEmail(ctx, email, l.codec.Now())
	if err != nil {
		return nil, fatal("get active invitation", err)
	}
	return inv, nil
}

// List returns one page of invitations and the total count for f.
func (l *Ledger) List(ctx context.Context, f repository.Filter, p repository.Page) ([]*domain.Invitation, int, error) {
	items, total, err := l.repo.List(ctx, f, p, l.codec.Now())
	if err != nil {
		return nil, 0, fatal("list invitations", err)
	}
	return items, total, nil
}

// Resend rotates the secret of a pending or expired invitation and resets its expiry. The old
// secret stops matching as soon as the update lands. The store refuses the rotation when another
// invitation for the email became active in the meantime.
func (l *Ledger) Resend(ctx context.Context, id string, validity time.Duration) (*Issued, error) {
	if err := CheckValidity(validity); err != nil {
		return nil, err
	}
	inv, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Used {
		return nil, domain.ErrAlreadyUsed
	}
	other, err := l.ActiveByEmail(ctx, inv.Email)
	if err != nil {
		return nil, err
	}
	if other != nil && other.ID != inv.ID {
		return nil, fmt.Errorf("%w: another active invitation exists for this email", domain.ErrConflict)
	}
	secret, fp, exp, err := l.mint(validity)
	if err != nil {
		return nil, err
	}
	now := l.codec.Now()
	changed, err := l.repo.Rotate(ctx, id, repository.Patch{
		TokenHash: fp.Hash,
		TokenSalt: fp.Salt,
		ExpiresAt: exp,
		UpdatedAt: now,
	}, now)
	if errors.Is(err, repository.ErrActiveInvitationExists) {
		return nil, fmt.Errorf("%w: another active invitation exists for this email", domain.ErrConflict)
	}
	if err != nil {
		return nil, fatal("rotate invitation", err)
	}
	if !changed {
		return nil, l.explainLostUpdate(ctx, id)
	}
	inv.TokenHash, inv.TokenSalt, inv.ExpiresAt, inv.UpdatedAt = fp.Hash, fp.Salt, exp, now
	return &Issued{Invitation: inv, Secret: secret}, nil
}

// Cancel hard-deletes a pending invitation. Accepted invitations can't be cancelled.
func (l *Ledger) Cancel(ctx context.Context, id string) error {
	inv, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if inv.Used {
		return domain.ErrAlreadyUsed
	}
	deleted, err := l.repo.Delete(ctx, id)
	if err != nil {
		return fatal("delete invitation", err)
	}
	if !deleted {
		return l.explainLostUpdate(ctx, id)
	}
	return nil
}

// Validate finds the unused invitation whose fingerprint matches secret. Every candidate is
// checked with its own salt in constant time; expiry is only reported after a match.
func (l *Ledger) Validate(ctx context.Context, secret string) (*domain.Invitation, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, domain.ErrNotFound
	}
	candidates, err := l.repo.ListActive(ctx, l.codec.Now().Add(-l.lookback))
	if err != nil {
		return nil, fatal("list active invitations", err)
	}
	for _, inv := range candidates {
		if !l.codec.Matches(secret, security.Fingerprint{Hash: inv.TokenHash, Salt: inv.TokenSalt}) {
			continue
		}
		if l.codec.IsExpired(inv.ExpiresAt) {
			return nil, domain.ErrExpired
		}
		return inv, nil
	}
	return nil, domain.ErrNotFound
}

// Redeem validates secret and marks the matching invitation used by accountID. The update is
// conditional on the record still being unused with the same fingerprint, so of several
// concurrent redemptions exactly one succeeds.
func (l *Ledger) Redeem(ctx context.Context, secret, accountID string) (*domain.Invitation, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", domain.ErrInvalidInput)
	}
	inv, err := l.Validate(ctx, secret)
	if err != nil {
		return nil, err
	}
	now := l.codec.Now()
	changed, err := l.repo.UpdateIfUnused(ctx, inv.ID, inv.TokenHash, repository.Patch{
		MarkUsed:  true,
		UsedAt:    now,
		UsedBy:    accountID,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fatal("redeem invitation", err)
	}
	if !changed {
		return nil, l.explainLostUpdate(ctx, inv.ID)
	}
	inv.Used, inv.UsedAt, inv.UsedBy, inv.UpdatedAt = true, &now, accountID, now
	return inv, nil
}

// explainLostUpdate maps a conditional write that matched no row to the error kind the caller should see.
func (l *Ledger) explainLostUpdate(ctx context.Context, id string) error {
	cur, err := l.repo.Get(ctx, id)
	if err != nil {
		return fatal("reload invitation", err)
	}
	if cur != nil && cur.Used {
		l.logger.InfoContext(ctx, "invitation already used by a concurrent request", "invitation_id", id)
		return domain.ErrAlreadyUsed
	}
	l.logger.InfoContext(ctx, "invitation changed by a concurrent request", "invitation_id", id, "deleted", cur == nil)
	return domain.ErrNotFound
}

// CheckParams rejects malformed create parameters without touching the store.
func CheckParams(p CreateParams) error {
	if strings.TrimSpace(p.Email) == "" || p.Role == "" || p.InvitedBy == "" {
		return fmt.Errorf("%w: email, role and inviter are required", domain.ErrInvalidInput)
	}
	if err := CheckValidity(p.Validity); err != nil {
		return err
	}
	return validateMetadata(p.Metadata)
}

// CheckValidity accepts zero (use the default) or a duration within the codec bounds.
func CheckValidity(v time.Duration) error {
	if v != 0 && (v < security.MinInviteValidity || v > security.MaxInviteValidity) {
		return fmt.Errorf("%w: validity must be between %s and %s",
			domain.ErrInvalidInput, security.MinInviteValidity, security.MaxInviteValidity)
	}
	return nil
}

func validateMetadata(m map[string]string) error {
	if len(m) > maxMetadataEntries {
		return fmt.Errorf("%w: at most %d metadata entries", domain.ErrInvalidInput, maxMetadataEntries)
	}
	for k, v := range m {
		if k == "" || len(k) > maxMetadataKeyLen || len(v) > maxMetadataValueLen {
			return fmt.Errorf("%w: metadata key %q too long or empty", domain.ErrInvalidInput, k)
		}
	}
	return nil
}
