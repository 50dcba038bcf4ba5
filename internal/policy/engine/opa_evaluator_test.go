package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"travel-cms/backend/internal/policy/domain"
)

func TestEvaluators_AgreeOnDefaultHierarchy(t *testing.T) {
	ctx := context.Background()
	policy := domain.DefaultIssuancePolicy()
	opa, err := NewOPAEvaluator(ctx, policy, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	static := NewStaticEvaluator(policy)
	roles := []string{domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleContentManager, domain.RoleViewer, "ghost"}
	for _, from := range roles {
		for _, to := range roles {
			want, _ := static.CanGrant(ctx, from, to)
			got, err := opa.CanGrant(ctx, from, to)
			if err != nil {
				t.Fatalf("CanGrant(%s, %s): %v", from, to, err)
			}
			if got != want {
				t.Errorf("CanGrant(%s, %s) = %v, static says %v", from, to, got, want)
			}
		}
	}
}

func TestOPAEvaluator_ContentManagerCannotGrantAdmin(t *testing.T) {
	ctx := context.Background()
	opa, err := NewOPAEvaluator(ctx, domain.DefaultIssuancePolicy(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if ok, _ := opa.CanGrant(ctx, domain.RoleContentManager, domain.RoleAdmin); ok {
		t.Error("content_manager allowed to grant admin")
	}
	if ok, _ := opa.CanGrant(ctx, domain.RoleAdmin, domain.RoleContentManager); !ok {
		t.Error("admin denied content_manager")
	}
}

func TestOPAEvaluator_CustomModule(t *testing.T) {
	ctx := context.Background()
	module := `package travelcms.invitation

default allow := false

allow if {
	input.target_role in input.grants[input.inviter_role]
	input.target_role != "super_admin"
}
`
	path := filepath.Join(t.TempDir(), "issuance.rego")
	if err := os.WriteFile(path, []byte(module), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	opa, err := NewOPAEvaluatorFromFile(ctx, domain.DefaultIssuancePolicy(), path)
	if err != nil {
		t.Fatalf("NewOPAEvaluatorFromFile: %v", err)
	}
	if ok, _ := opa.CanGrant(ctx, domain.RoleSuperAdmin, domain.RoleSuperAdmin); ok {
		t.Error("custom rule did not deny super_admin grants")
	}
	if ok, _ := opa.CanGrant(ctx, domain.RoleSuperAdmin, domain.RoleAdmin); !ok {
		t.Error("custom rule denied admin grant")
	}
}

func TestOPAEvaluator_InvalidModule(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), domain.DefaultIssuancePolicy(), "package broken\nallow if {"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	opa, err := NewOPAEvaluator(context.Background(), domain.DefaultIssuancePolicy(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := opa.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
