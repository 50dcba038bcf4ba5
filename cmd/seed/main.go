// seed creates the first super_admin account for local development and prints an access token for
// it, so invitations can be issued with cmd/invitectl. Idempotent: an existing account is reused.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"travel-cms/backend/internal/config"
	"travel-cms/backend/internal/db"
	identityrepo "travel-cms/backend/internal/identity/repository"
	identityservice "travel-cms/backend/internal/identity/service"
	policydomain "travel-cms/backend/internal/policy/domain"
	"travel-cms/backend/internal/security"
	userrepo "travel-cms/backend/internal/user/repository"
)

const (
	devAdminEmail    = "admin@travel-cms.local"
	devAdminName     = "Dev Admin"
	devAdminPassword = "Dev-Admin-Passw0rd!"
)

func main() {
	email := flag.String("email", devAdminEmail, "Email of the super_admin account")
	password := flag.String("password", devAdminPassword, "Password for a newly created account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("seed must not run with APP_ENV=production")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		log.Fatal("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required to print an access token")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	accounts := identityservice.NewAccountService(users, identityrepo.NewPostgresRepository(conn), security.NewHasher(cfg.BcryptCost), nil)

	existing, err := users.GetByEmail(ctx, identityservice.NormalizeEmail(*email))
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	userID, name := "", devAdminName
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Reusing it.", existing.Email)
		userID, name = existing.ID, existing.Name
		if existing.Role != policydomain.RoleSuperAdmin {
			log.Fatalf("%s exists with role %q, not %q", existing.Email, existing.Role, policydomain.RoleSuperAdmin)
		}
	} else {
		userID, err = accounts.CreateFromInvitation(ctx, *email, devAdminName, policydomain.RoleSuperAdmin, *password)
		if err != nil {
			log.Fatalf("create super admin: %v", err)
		}
		log.Println("Seed completed successfully.")
		fmt.Printf("Dev login: %s / %s\n", *email, *password)
	}

	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	token, expiresAt, err := tokens.IssueAccess(userID, policydomain.RoleSuperAdmin, name)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Printf("Access token (expires %s):\n%s\n", expiresAt.Format("2006-01-02T15:04:05Z07:00"), token)
}
