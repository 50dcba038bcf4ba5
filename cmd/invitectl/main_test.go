package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	invitationv1 "travel-cms/backend/api/invitation/v1"
)

// fakeInvitations records the requests it receives. Unused methods panic via the nil embed.
type fakeInvitations struct {
	invitationv1.InvitationServiceServer
	create    *invitationv1.CreateInvitationRequest
	authz     string
	validated string
}

func (f *fakeInvitations) CreateInvitation(ctx context.Context, req *invitationv1.CreateInvitationRequest) (*invitationv1.CreateInvitationResponse, error) {
	f.create = req
	if md, ok := metadata.FromIncomingContext(ctx); ok && len(md.Get("authorization")) > 0 {
		f.authz = md.Get("authorization")[0]
	}
	return &invitationv1.CreateInvitationResponse{
		Invitation: &invitationv1.Invitation{ID: "inv-1", Email: req.Email, Role: req.Role, Status: "pending"},
	}, nil
}

func (f *fakeInvitations) ValidateInvitation(_ context.Context, req *invitationv1.ValidateInvitationRequest) (*invitationv1.ValidateInvitationResponse, error) {
	f.validated = req.Token
	return nil, status.Error(codes.NotFound, "invalid or expired invitation")
}

func bufDialer(t *testing.T, srv invitationv1.InvitationServiceServer) dialFunc {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	invitationv1.RegisterInvitationServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	return func(string) (*grpc.ClientConn, error) {
		return grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}
}

func TestRun_Create(t *testing.T) {
	fake := &fakeInvitations{}
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-token", "tok", "create",
		"-email", "guide@example.com", "-role", "viewer", "-validity", "24h",
		"-meta", "team=ops", "-meta", "region=eu",
	}, &out, bufDialer(t, fake))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if fake.create == nil || fake.create.Email != "guide@example.com" || fake.create.ValiditySeconds != 86400 {
		t.Fatalf("create request = %+v", fake.create)
	}
	if fake.create.Metadata["team"] != "ops" || fake.create.Metadata["region"] != "eu" {
		t.Errorf("metadata = %v", fake.create.Metadata)
	}
	if fake.authz != "Bearer tok" {
		t.Errorf("authorization = %q", fake.authz)
	}
	var resp invitationv1.CreateInvitationResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if resp.Invitation == nil || resp.Invitation.ID != "inv-1" {
		t.Errorf("output = %s", out.String())
	}
}

func TestRun_ServerError(t *testing.T) {
	fake := &fakeInvitations{}
	err := run(context.Background(), []string{"validate", "-secret", "nope"}, &bytes.Buffer{}, bufDialer(t, fake))
	if status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
	if fake.validated != "nope" {
		t.Errorf("validated = %q", fake.validated)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	noDial := func(string) (*grpc.ClientConn, error) {
		t.Fatal("dial should not be reached")
		return nil, nil
	}
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "usage"},
		{"unknown command", []string{"explode"}, "unknown command"},
		{"bad flag", []string{"list", "-limit", "many"}, "list"},
		{"bad metadata", []string{"create", "-meta", "novalue"}, "key=value"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := run(context.Background(), tc.args, &bytes.Buffer{}, noDial)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestRun_MissingRequiredFlag(t *testing.T) {
	err := run(context.Background(), []string{"cancel"}, &bytes.Buffer{}, bufDialer(t, &fakeInvitations{}))
	if err == nil || !strings.Contains(err.Error(), "-id is required") {
		t.Errorf("err = %v", err)
	}
}
