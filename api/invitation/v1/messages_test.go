package invitationv1

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestDecode_AcceptsCamelCase(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{
		"token":       "abc",
		"displayName": "Jo",
		"password":    "pw",
	})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	var req AcceptInvitationRequest
	if err := Decode(s, &req); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.DisplayName != "Jo" || req.Token != "abc" {
		t.Errorf("req = %+v", req)
	}
}

func TestDecode_NestedKeysUntouched(t *testing.T) {
	s, _ := structpb.NewStruct(map[string]any{
		"email":    "a@example.com",
		"metadata": map[string]any{"tourCode": "T1"},
	})
	var req CreateInvitationRequest
	if err := Decode(s, &req); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.Metadata["tourCode"] != "T1" {
		t.Errorf("metadata = %v", req.Metadata)
	}
}

func TestEncodeDecode_Invitation(t *testing.T) {
	exp := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	in := &ListInvitationsResponse{
		Invitations: []*Invitation{{ID: "i1", Email: "a@example.com", Status: "pending", ExpiresAt: exp}},
		Total:       7,
	}
	s, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out ListInvitationsResponse
	if err := Decode(s, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Total != 7 || len(out.Invitations) != 1 || !out.Invitations[0].ExpiresAt.Equal(exp) {
		t.Errorf("out = %+v", out)
	}
}

func TestDecode_WrongType(t *testing.T) {
	s, _ := structpb.NewStruct(map[string]any{"limit": "ten"})
	var req ListInvitationsRequest
	if err := Decode(s, &req); err == nil {
		t.Error("expected error for string limit")
	}
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"validitySeconds": "validity_seconds",
		"trip_id":         "trip_id",
		"ID":              "id",
		"tripID":          "trip_id",
		"token":           "token",
	} {
		if got := snakeCase(in); got != want {
			t.Errorf("snakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
