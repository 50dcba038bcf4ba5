package interceptors

import "context"

type contextKey struct{ name string }

var (
	userIDKey   = contextKey{"user_id"}
	roleKey     = contextKey{"role"}
	userNameKey = contextKey{"user_name"}
)

// WithIdentity returns a context carrying the authenticated caller's id, role and display name.
// Handlers read them via GetUserID, GetRole, GetUserName.
func WithIdentity(ctx context.Context, userID, role, name string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, roleKey, role)
	ctx = context.WithValue(ctx, userNameKey, name)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetRole returns the caller role from context and true if set; otherwise "", false.
func GetRole(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey).(string)
	return v, ok
}

// GetUserName returns the caller display name, or "".
func GetUserName(ctx context.Context) string {
	v, _ := ctx.Value(userNameKey).(string)
	return v
}
