package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/bcrypt"

	identitydomain "travel-cms/backend/internal/identity/domain"
	identityrepo "travel-cms/backend/internal/identity/repository"
	"travel-cms/backend/internal/security"
	userrepo "travel-cms/backend/internal/user/repository"
)

type failingIdentityRepo struct{}

func (failingIdentityRepo) GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error) {
	return nil, nil
}

func (failingIdentityRepo) Create(ctx context.Context, i *identitydomain.Identity) error {
	return errors.New("disk full")
}

func (failingIdentityRepo) DeleteByUser(ctx context.Context, userID string) error {
	return nil
}

func newTestAccountService() (*AccountService, *userrepo.MemoryRepository, *identityrepo.MemoryRepository) {
	users := userrepo.NewMemoryRepository()
	identities := identityrepo.NewMemoryRepository()
	return NewAccountService(users, identities, security.NewHasher(bcrypt.MinCost), nil), users, identities
}

func TestAccountService_CreateFromInvitation(t *testing.T) {
	ctx := context.Background()
	svc, users, identities := newTestAccountService()

	id, err := svc.CreateFromInvitation(ctx, " Alice@Example.com ", "Alice", "content_manager", "Sup3r-Secret!!")
	if err != nil {
		t.Fatalf("CreateFromInvitation: %v", err)
	}
	u, _ := users.GetByID(ctx, id)
	if u == nil || u.Email != "alice@example.com" || u.Role != "content_manager" || u.Name != "Alice" {
		t.Fatalf("stored user = %+v", u)
	}
	ident, _ := identities.GetByUserAndProvider(ctx, id, identitydomain.IdentityProviderLocal)
	if ident == nil || ident.PasswordHash == "" || ident.PasswordHash == "Sup3r-Secret!!" {
		t.Fatalf("stored identity = %+v", ident)
	}
	exists, err := svc.ExistsByEmail(ctx, "ALICE@example.com")
	if err != nil || !exists {
		t.Fatalf("ExistsByEmail = %v, %v; want true", exists, err)
	}
	if _, err := svc.CreateFromInvitation(ctx, "alice@example.com", "Alice", "viewer", "Sup3r-Secret!!"); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Errorf("second create err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestAccountService_Validation(t *testing.T) {
	svc, _, _ := newTestAccountService()
	tests := []struct {
		name, email, display, password string
		want                           error
	}{
		{"bad email", "not-an-email", "A", "Sup3r-Secret!!", ErrInvalidEmail},
		{"no name", "a@example.com", "  ", "Sup3r-Secret!!", ErrInvalidDisplayName},
		{"short password", "a@example.com", "A", "Sh0rt!", ErrWeakPassword},
		{"no symbol", "a@example.com", "A", "NoSymbolsHere1", ErrWeakPassword},
		{"no upper", "a@example.com", "A", "nouppercase-1x", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateFromInvitation(context.Background(), tt.email, tt.display, "viewer", tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAccountService_RollsBackUserOnIdentityFailure(t *testing.T) {
	ctx := context.Background()
	users := userrepo.NewMemoryRepository()
	svc := NewAccountService(users, failingIdentityRepo{}, security.NewHasher(bcrypt.MinCost), nil)
	if _, err := svc.CreateFromInvitation(ctx, "bob@example.com", "Bob", "viewer", "Sup3r-Secret!!"); err == nil {
		t.Fatal("expected error")
	}
	if u, _ := users.GetByEmail(ctx, "bob@example.com"); u != nil {
		t.Error("user left behind after identity failure")
	}
}

func TestAccountService_RemoveAccount(t *testing.T) {
	ctx := context.Background()
	svc, users, identities := newTestAccountService()
	id, err := svc.CreateFromInvitation(ctx, "carol@example.com", "Carol", "admin", "Sup3r-Secret!!")
	if err != nil {
		t.Fatalf("CreateFromInvitation: %v", err)
	}
	if err := svc.RemoveAccount(ctx, id); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	if u, _ := users.GetByID(ctx, id); u != nil {
		t.Error("user still present after RemoveAccount")
	}
	if i, _ := identities.GetByUserAndProvider(ctx, id, identitydomain.IdentityProviderLocal); i != nil {
		t.Error("identity still present after RemoveAccount")
	}
	if exists, _ := svc.ExistsByEmail(ctx, "carol@example.com"); exists {
		t.Error("email still registered after RemoveAccount")
	}
	if err := svc.RemoveAccount(ctx, id); err != nil {
		t.Errorf("second RemoveAccount: %v", err)
	}
}

func TestAccountService_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAccountService()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateFromInvitation(ctx, "race@example.com", "Racer", "viewer", "Sup3r-Secret!!"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("successful creates = %d, want 1", wins.Load())
	}
}
