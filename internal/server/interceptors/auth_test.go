package interceptors

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"travel-cms/backend/internal/security"
)

func okHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "success", nil
}

func newTokens(t *testing.T) *security.TokenProvider {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	return tokens
}

func withBearer(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func TestAuthUnary_PublicMethod(t *testing.T) {
	interceptor := AuthUnary(newTokens(t), map[string]bool{"/test.Service/PublicMethod": true})

	resp, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/PublicMethod",
	}, okHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "success" {
		t.Errorf("response = %v, want %q", resp, "success")
	}
}

func TestAuthUnary_ProtectedMethod_NoToken(t *testing.T) {
	interceptor := AuthUnary(newTokens(t), nil)

	_, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/ProtectedMethod",
	}, okHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("status code = %v, want %v", status.Code(err), codes.Unauthenticated)
	}
}

func TestAuthUnary_ProtectedMethod_ValidToken(t *testing.T) {
	tokens := newTokens(t)
	token, _, err := tokens.IssueAccess("user-1", "admin", "Ada")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	interceptor := AuthUnary(tokens, nil)

	var gotUser, gotRole, gotName string
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		gotUser, _ = GetUserID(ctx)
		gotRole, _ = GetRole(ctx)
		gotName = GetUserName(ctx)
		return "success", nil
	}
	if _, err := interceptor(withBearer(token), "request", &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/ProtectedMethod",
	}, handler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if gotUser != "user-1" || gotRole != "admin" || gotName != "Ada" {
		t.Errorf("identity = %q/%q/%q", gotUser, gotRole, gotName)
	}
}

func TestAuthUnary_ProtectedMethod_InvalidToken(t *testing.T) {
	interceptor := AuthUnary(newTokens(t), nil)
	_, err := interceptor(withBearer("not-a-jwt"), "request", &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/ProtectedMethod",
	}, okHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("status code = %v, want %v", status.Code(err), codes.Unauthenticated)
	}
}

func TestAuthUnary_NilProvider(t *testing.T) {
	interceptor := AuthUnary(nil, nil)
	_, err := interceptor(withBearer("x"), "request", &grpc.UnaryServerInfo{FullMethod: "/test.Service/M"}, okHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("status code = %v, want %v", status.Code(err), codes.Unauthenticated)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"no metadata", context.Background(), ""},
		{"no header", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x", "y")), ""},
		{"lowercase scheme", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "bearer abc")), "abc"},
		{"wrong scheme", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic abcdefg")), ""},
		{"too short", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bear")), ""},
		{"padded", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "  Bearer   tok  ")), "tok"},
	}
	for _, tt := range tests {
		if got := extractBearer(tt.ctx); got != tt.want {
			t.Errorf("%s: extractBearer = %q, want %q", tt.name, got, tt.want)
		}
	}
}
