package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"travel-cms/backend/internal/db"
	"travel-cms/backend/internal/db/migrate"
	"travel-cms/backend/internal/invitation/domain"
)

var baseTime = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newInvitation(email string, expiresIn time.Duration) *domain.Invitation {
	return &domain.Invitation{
		ID:        uuid.New().String(),
		Email:     email,
		Role:      "viewer",
		InvitedBy: "admin-1",
		Metadata:  map[string]string{"team": "ops"},
		TokenHash: uuid.New().String(),
		TokenSalt: "00ff",
		ExpiresAt: baseTime.Add(expiresIn),
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Repository { return NewMemoryRepository() })
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	conn, err := db.Open(context.Background(), dsn, db.PoolConfig{})
	if err != nil {
		t.Skipf("Database connection failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	runRepositoryContract(t, func(t *testing.T) Repository {
		if _, err := conn.Exec(`DELETE FROM invitations`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewPostgresRepository(conn)
	})
}

func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("insert get and active lookup", func(t *testing.T) {
		repo := newRepo(t)
		inv := newInvitation("a@example.com", 72*time.Hour)
		inv.TripID = "trip-9"
		if err := repo.Insert(ctx, inv, baseTime); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		got, err := repo.Get(ctx, inv.ID)
		if err != nil || got == nil {
			t.Fatalf("Get = %v, %v", got, err)
		}
		if got.Email != inv.Email || got.TripID != "trip-9" || got.Metadata["team"] != "ops" || got.Used {
			t.Errorf("Get = %+v", got)
		}
		active, err := repo.GetActiveByEmail(ctx, "a@example.com", baseTime)
		if err != nil || active == nil || active.ID != inv.ID {
			t.Errorf("GetActiveByEmail = %v, %v", active, err)
		}
		if active, _ := repo.GetActiveByEmail(ctx, "a@example.com", baseTime.Add(73*time.Hour)); active != nil {
			t.Error("GetActiveByEmail returned an expired invitation")
		}
		if missing, err := repo.Get(ctx, uuid.New().String()); missing != nil || err != nil {
			t.Errorf("Get(missing) = %v, %v; want nil, nil", missing, err)
		}
	})

	t.Run("second active insert for email rejected", func(t *testing.T) {
		repo := newRepo(t)
		if err := repo.Insert(ctx, newInvitation("b@example.com", time.Hour), baseTime); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		err := repo.Insert(ctx, newInvitation("b@example.com", time.Hour), baseTime)
		if !errors.Is(err, ErrActiveInvitationExists) {
			t.Fatalf("second Insert err = %v, want ErrActiveInvitationExists", err)
		}
		if err := repo.Insert(ctx, newInvitation("b@example.com", 3*time.Hour), baseTime.Add(2*time.Hour)); err != nil {
			t.Fatalf("Insert after first expired: %v", err)
		}
	})

	t.Run("concurrent inserts for one email", func(t *testing.T) {
		repo := newRepo(t)
		var ok atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.Insert(ctx, newInvitation("race@example.com", time.Hour), baseTime); err == nil {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()
		if ok.Load() != 1 {
			t.Errorf("successful inserts = %d, want 1", ok.Load())
		}
	})

	t.Run("update if unused is single shot", func(t *testing.T) {
		repo := newRepo(t)
		inv := newInvitation("c@example.com", time.Hour)
		if err := repo.Insert(ctx, inv, baseTime); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		patch := Patch{MarkUsed: true, UsedAt: baseTime.Add(time.Minute), UsedBy: "acct-1", UpdatedAt: baseTime.Add(time.Minute)}
		if changed, err := repo.UpdateIfUnused(ctx, inv.ID, "wrong-hash", patch); err != nil || changed {
			t.Fatalf("UpdateIfUnused(wrong hash) = %v, %v", changed, err)
		}
		if changed, err := repo.UpdateIfUnused(ctx, inv.ID, inv.TokenHash, patch); err != nil || !changed {
			t.Fatalf("UpdateIfUnused = %v, %v", changed, err)
		}
		if changed, _ := repo.UpdateIfUnused(ctx, inv.ID, inv.TokenHash, patch); changed {
			t.Fatal("second UpdateIfUnused changed a used invitation")
		}
		got, _ := repo.Get(ctx, inv.ID)
		if !got.Used || got.UsedBy != "acct-1" || got.UsedAt == nil {
			t.Errorf("after redeem = %+v", got)
		}
		if deleted, _ := repo.Delete(ctx, inv.ID); deleted {
			t.Error("Delete removed a used invitation")
		}
	})

	t.Run("concurrent update single winner", func(t *testing.T) {
		repo := newRepo(t)
		inv := newInvitation("d@example.com", time.Hour)
		if err := repo.Insert(ctx, inv, baseTime); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				changed, err := repo.UpdateIfUnused(ctx, inv.ID, inv.TokenHash, Patch{MarkUsed: true, UsedAt: baseTime, UsedBy: "x", UpdatedAt: baseTime})
				if err == nil && changed {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Errorf("winners = %d, want 1", wins.Load())
		}
	})

	t.Run("rotate fingerprint and expiry", func(t *testing.T) {
		repo := newRepo(t)
		inv := newInvitation("e@example.com", time.Hour)
		if err := repo.Insert(ctx, inv, baseTime); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		newExp := baseTime.Add(48 * time.Hour)
		changed, err := repo.UpdateIfUnused(ctx, inv.ID, "", Patch{TokenHash: "h2", TokenSalt: "s2", ExpiresAt: newExp, UpdatedAt: baseTime.Add(time.Minute)})
		if err != nil || !changed {
			t.Fatalf("UpdateIfUnused = %v, %v", changed, err)
		}
		got, _ := repo.Get(ctx, inv.ID)
		if got.TokenHash != "h2" || got.TokenSalt != "s2" || !got.ExpiresAt.Equal(newExp) || got.Used {
			t.Errorf("after rotate = %+v", got)
		}
	})

	t.Run("rotate refuses while another invitation is active", func(t *testing.T) {
		repo := newRepo(t)
		old := newInvitation("g@example.com", -time.Hour)
		if err := repo.Insert(ctx, old, baseTime.Add(-2*time.Hour)); err != nil {
			t.Fatalf("Insert old: %v", err)
		}
		if err := repo.Insert(ctx, newInvitation("g@example.com", time.Hour), baseTime); err != nil {
			t.Fatalf("Insert new: %v", err)
		}
		patch := Patch{TokenHash: "h3", TokenSalt: "s3", ExpiresAt: baseTime.Add(24 * time.Hour), UpdatedAt: baseTime}
		changed, err := repo.Rotate(ctx, old.ID, patch, baseTime)
		if !errors.Is(err, ErrActiveInvitationExists) || changed {
			t.Fatalf("Rotate = %v, %v; want ErrActiveInvitationExists", changed, err)
		}
		got, _ := repo.Get(ctx, old.ID)
		if got.TokenHash == "h3" {
			t.Error("Rotate changed the record despite the conflict")
		}
		if changed, err := repo.Rotate(ctx, uuid.New().String(), patch, baseTime); err != nil || changed {
			t.Errorf("Rotate(missing) = %v, %v", changed, err)
		}
	})

	t.Run("rotate own active record", func(t *testing.T) {
		repo := newRepo(t)
		inv := newInvitation("h@example.com", time.Hour)
		if err := repo.Insert(ctx, inv, baseTime); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		changed, err := repo.Rotate(ctx, inv.ID, Patch{TokenHash: "h4", TokenSalt: "s4", UpdatedAt: baseTime}, baseTime)
		if err != nil || !changed {
			t.Fatalf("Rotate = %v, %v", changed, err)
		}
	})

	t.Run("list active respects cutoff", func(t *testing.T) {
		repo := newRepo(t)
		live := newInvitation("live@example.com", time.Hour)
		gone := newInvitation("gone@example.com", -time.Hour)
		gone.CreatedAt = baseTime.Add(-2 * time.Hour)
		for _, inv := range []*domain.Invitation{live, gone} {
			if err := repo.Insert(ctx, inv, baseTime.Add(-3*time.Hour)); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		active, err := repo.ListActive(ctx, baseTime)
		if err != nil {
			t.Fatalf("ListActive: %v", err)
		}
		if len(active) != 1 || active[0].ID != live.ID {
			t.Errorf("ListActive(now) = %d records", len(active))
		}
		withExpired, _ := repo.ListActive(ctx, baseTime.Add(-24*time.Hour))
		if len(withExpired) != 2 {
			t.Errorf("ListActive(now-24h) = %d records, want 2", len(withExpired))
		}
	})

	t.Run("list filters and pages", func(t *testing.T) {
		repo := newRepo(t)
		for i, email := range []string{"p1@example.com", "p2@example.com", "q1@sample.org"} {
			inv := newInvitation(email, time.Hour)
			inv.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
			if i == 2 {
				inv.Role = "content_manager"
			}
			if err := repo.Insert(ctx, inv, baseTime); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		items, total, err := repo.List(ctx, Filter{}, Page{Limit: 2}, baseTime)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 3 || len(items) != 2 || items[0].Email != "q1@sample.org" {
			t.Errorf("List page 1 = %d items, total %d", len(items), total)
		}
		items, total, _ = repo.List(ctx, Filter{}, Page{Limit: 2, Offset: 2}, baseTime)
		if total != 3 || len(items) != 1 || items[0].Email != "p1@example.com" {
			t.Errorf("List page 2 = %d items, total %d", len(items), total)
		}
		items, total, _ = repo.List(ctx, Filter{Email: "EXAMPLE"}, Page{Limit: 10}, baseTime)
		if total != 2 || len(items) != 2 {
			t.Errorf("List(email) total = %d", total)
		}
		_, total, _ = repo.List(ctx, Filter{Role: "content_manager"}, Page{Limit: 10}, baseTime)
		if total != 1 {
			t.Errorf("List(role) total = %d, want 1", total)
		}
		_, total, _ = repo.List(ctx, Filter{Status: domain.StatusExpired}, Page{Limit: 10}, baseTime.Add(2*time.Hour))
		if total != 3 {
			t.Errorf("List(expired) total = %d, want 3", total)
		}
		_, total, _ = repo.List(ctx, Filter{Status: domain.StatusAccepted}, Page{Limit: 10}, baseTime)
		if total != 0 {
			t.Errorf("List(accepted) total = %d, want 0", total)
		}
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		inv := newInvitation("f@example.com", time.Hour)
		if err := repo.Insert(ctx, inv, baseTime); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if deleted, err := repo.Delete(ctx, inv.ID); err != nil || !deleted {
			t.Fatalf("Delete = %v, %v", deleted, err)
		}
		if got, _ := repo.Get(ctx, inv.ID); got != nil {
			t.Error("invitation still present after Delete")
		}
		if deleted, _ := repo.Delete(ctx, inv.ID); deleted {
			t.Error("second Delete reported a removal")
		}
	})
}
