package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	identitydomain "travel-cms/backend/internal/identity/domain"
	identityrepo "travel-cms/backend/internal/identity/repository"
	"travel-cms/backend/internal/security"
	userdomain "travel-cms/backend/internal/user/domain"
	userrepo "travel-cms/backend/internal/user/repository"
)

var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrWeakPassword           = errors.New("password does not meet policy")
	ErrInvalidEmail           = errors.New("invalid email")
	ErrInvalidDisplayName     = errors.New("display name is required")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// AccountService is the account store behind invitation acceptance: it answers whether an email is
// taken and creates a user with a local password identity.
type AccountService struct {
	users      userrepo.Repository
	identities identityrepo.Repository
	hasher     *security.Hasher
	logger     *slog.Logger
	now        func() time.Time
}

// NewAccountService returns an AccountService. logger may be nil.
func NewAccountService(users userrepo.Repository, identities identityrepo.Repository, hasher *security.Hasher, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{users: users, identities: identities, hasher: hasher, logger: logger, now: time.Now}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the address shape. email must already be normalized.
func ValidateEmail(email string) error {
	if email == "" || !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ExistsByEmail reports whether an account already uses email.
func (s *AccountService) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// CreateFromInvitation creates an active account for an invitation's email and role and returns its id.
func (s *AccountService) CreateFromInvitation(ctx context.Context, email, displayName, role, password string) (string, error) {
	email = NormalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	if displayName == "" {
		return "", ErrInvalidDisplayName
	}
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	exists, err := s.ExistsByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	now := s.now().UTC()
	user := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      displayName,
		Role:      role,
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.Validate(); err != nil {
		return "", err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return "", ErrEmailAlreadyRegistered
		}
		return "", err
	}
	identity := &identitydomain.Identity{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hashed,
		CreatedAt:    now,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "account rollback failed", "user_id", user.ID, "error", delErr)
		}
		return "", err
	}
	return user.ID, nil
}

// RemoveAccount deletes an account created by CreateFromInvitation together with its identities.
// Acceptance uses it when the invitation could not be redeemed after the account was created.
func (s *AccountService) RemoveAccount(ctx context.Context, userID string) error {
	if err := s.identities.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete identities: %w", err)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ValidatePassword enforces the account password policy: at least 12 characters with upper, lower,
// digit and symbol.
func ValidatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("%w: must be at least 12 characters", ErrWeakPassword)
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return fmt.Errorf("%w: needs an uppercase letter", ErrWeakPassword)
	case !hasLower:
		return fmt.Errorf("%w: needs a lowercase letter", ErrWeakPassword)
	case !hasNumber:
		return fmt.Errorf("%w: needs a number", ErrWeakPassword)
	case !hasSymbol:
		return fmt.Errorf("%w: needs a symbol", ErrWeakPassword)
	}
	return nil
}
