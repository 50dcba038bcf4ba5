package rbac

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	policydomain "travel-cms/backend/internal/policy/domain"
	"travel-cms/backend/internal/server/interceptors"
)

func TestRequireInviter_Success(t *testing.T) {
	ctx := interceptors.WithIdentity(context.Background(), "user-1", policydomain.RoleContentManager, "Cy")
	caller, err := RequireInviter(ctx, policydomain.DefaultIssuancePolicy())
	if err != nil {
		t.Fatalf("RequireInviter: %v", err)
	}
	if caller.UserID != "user-1" || caller.Role != policydomain.RoleContentManager || caller.Name != "Cy" {
		t.Errorf("caller = %+v", caller)
	}
}

func TestRequireInviter_NoIdentity(t *testing.T) {
	_, err := RequireInviter(context.Background(), policydomain.DefaultIssuancePolicy())
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestRequireInviter_ViewerDenied(t *testing.T) {
	ctx := interceptors.WithIdentity(context.Background(), "user-2", policydomain.RoleViewer, "")
	_, err := RequireInviter(ctx, policydomain.DefaultIssuancePolicy())
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("code = %v, want PermissionDenied", status.Code(err))
	}
}

func TestRequireInviter_NilRoles(t *testing.T) {
	ctx := interceptors.WithIdentity(context.Background(), "user-1", policydomain.RoleSuperAdmin, "")
	if _, err := RequireInviter(ctx, nil); status.Code(err) != codes.PermissionDenied {
		t.Errorf("code = %v, want PermissionDenied", status.Code(err))
	}
}
