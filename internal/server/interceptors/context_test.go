package interceptors

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "admin", "Ada")

	userID, ok := GetUserID(ctx)
	if !ok || userID != "user-1" {
		t.Errorf("GetUserID = %q, %v; want user-1, true", userID, ok)
	}
	role, ok := GetRole(ctx)
	if !ok || role != "admin" {
		t.Errorf("GetRole = %q, %v; want admin, true", role, ok)
	}
	if name := GetUserName(ctx); name != "Ada" {
		t.Errorf("GetUserName = %q, want Ada", name)
	}
}

func TestGetters_ReturnFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()
	if v, ok := GetUserID(ctx); ok || v != "" {
		t.Errorf("GetUserID = %q, %v; want \"\", false", v, ok)
	}
	if v, ok := GetRole(ctx); ok || v != "" {
		t.Errorf("GetRole = %q, %v; want \"\", false", v, ok)
	}
	if v := GetUserName(ctx); v != "" {
		t.Errorf("GetUserName = %q, want empty", v)
	}
}

func TestWithIdentity_Overwrites(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "viewer", "")
	ctx = WithIdentity(ctx, "user-2", "admin", "Bo")
	if v, _ := GetUserID(ctx); v != "user-2" {
		t.Errorf("user_id = %q, want user-2", v)
	}
	if v, _ := GetRole(ctx); v != "admin" {
		t.Errorf("role = %q, want admin", v)
	}
}
