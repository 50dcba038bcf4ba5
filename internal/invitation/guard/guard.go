// Package guard decides whether an invitation may be issued before any token is minted.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	identityservice "travel-cms/backend/internal/identity/service"
	"travel-cms/backend/internal/invitation/domain"
	policydomain "travel-cms/backend/internal/policy/domain"
	"travel-cms/backend/internal/policy/engine"
)

// AccountChecker reports whether an account already exists for an email.
type AccountChecker interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// ActiveInvitationFinder returns the active invitation for a normalized email, or nil.
type ActiveInvitationFinder interface {
	ActiveByEmail(ctx context.Context, email string) (*domain.Invitation, error)
}

// Request is one issuance attempt.
type Request struct {
	Email       string
	Role        string
	InviterRole string
}

// Guard runs the issuance checks in order: input shape, role hierarchy, disposable domain,
// existing account, existing active invitation.
type Guard struct {
	policy    *policydomain.IssuancePolicy
	evaluator engine.GrantEvaluator
	accounts  AccountChecker
	active    ActiveInvitationFinder
	logger    *slog.Logger
}

// New returns a Guard. evaluator defaults to the static hierarchy and logger to slog.Default.
func New(policy *policydomain.IssuancePolicy, evaluator engine.GrantEvaluator, accounts AccountChecker, active ActiveInvitationFinder, logger *slog.Logger) *Guard {
	if evaluator == nil {
		evaluator = engine.NewStaticEvaluator(policy)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{policy: policy, evaluator: evaluator, accounts: accounts, active: active, logger: logger}
}

// Check returns nil when the invitation may be issued, and the normalized email.
func (g *Guard) Check(ctx context.Context, req Request) (string, error) {
	email := identityservice.NormalizeEmail(req.Email)
	if err := identityservice.ValidateEmail(email); err != nil {
		return "", fmt.Errorf("%w: email address is not valid", domain.ErrInvalidInput)
	}
	if !g.policy.IsKnownRole(req.Role) {
		return "", fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, req.Role)
	}

	allowed, err := g.evaluator.CanGrant(ctx, req.InviterRole, req.Role)
	if err != nil {
		g.logger.ErrorContext(ctx, "issuance policy evaluation failed", "error", err)
		return "", fmt.Errorf("%w: evaluate issuance policy: %v", domain.ErrFatal, err)
	}
	if !allowed {
		return "", fmt.Errorf("%w: role %s may not invite %s", domain.ErrForbidden, req.InviterRole, req.Role)
	}

	if g.policy.IsDisposableDomain(email[strings.LastIndexByte(email, '@')+1:]) {
		return "", fmt.Errorf("%w: disposable email domains are not accepted", domain.ErrInvalidInput)
	}

	exists, err := g.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("%w: check account: %v", domain.ErrFatal, err)
	}
	if exists {
		return "", fmt.Errorf("%w: an account already exists for this email", domain.ErrConflict)
	}

	inv, err := g.active.ActiveByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if inv != nil {
		return "", fmt.Errorf("%w: an active invitation already exists for this email", domain.ErrConflict)
	}
	return email, nil
}

// CheckManage decides whether inviterRole may cancel or resend an invitation for targetRole. The
// hierarchy that limits issuance also limits managing what was issued.
func (g *Guard) CheckManage(ctx context.Context, inviterRole, targetRole string) error {
	allowed, err := g.evaluator.CanGrant(ctx, inviterRole, targetRole)
	if err != nil {
		g.logger.ErrorContext(ctx, "issuance policy evaluation failed", "error", err)
		return fmt.Errorf("%w: evaluate issuance policy: %v", domain.ErrFatal, err)
	}
	if !allowed {
		return fmt.Errorf("%w: role %s may not manage %s invitations", domain.ErrForbidden, inviterRole, targetRole)
	}
	return nil
}
