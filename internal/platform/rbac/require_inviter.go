package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"travel-cms/backend/internal/server/interceptors"
)

// InviterRoles decides which staff roles may use the administrative invitation operations.
type InviterRoles interface {
	CanInvite(role string) bool
}

// Caller is the authenticated identity taken from context.
type Caller struct {
	UserID string
	Role   string
	Name   string
}

// RequireInviter ensures the caller is authenticated and holds a role allowed to invite.
// Returns a gRPC error (Unauthenticated or PermissionDenied) on failure.
func RequireInviter(ctx context.Context, roles InviterRoles) (Caller, error) {
	userID, okUser := interceptors.GetUserID(ctx)
	role, okRole := interceptors.GetRole(ctx)
	if !okUser || userID == "" || !okRole || role == "" {
		return Caller{}, status.Error(codes.Unauthenticated, "user context required")
	}
	if roles == nil || !roles.CanInvite(role) {
		return Caller{}, status.Error(codes.PermissionDenied, "role may not manage invitations")
	}
	return Caller{UserID: userID, Role: role, Name: interceptors.GetUserName(ctx)}, nil
}
