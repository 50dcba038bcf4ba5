// Package invitationv1 is the wire contract of travelcms.invitation.v1.InvitationService. Messages
// travel as google.protobuf.Struct; the typed structs here are their canonical Go shape.
package invitationv1

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"google.golang.org/protobuf/types/known/structpb"
)

// Invitation is the public view of an invitation record. Fingerprints are never sent.
type Invitation struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	Role      string            `json:"role"`
	Status    string            `json:"status"`
	InvitedBy string            `json:"invited_by"`
	TripID    string            `json:"trip_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
	UsedAt    *time.Time        `json:"used_at,omitempty"`
	UsedBy    string            `json:"used_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type CreateInvitationRequest struct {
	Email           string            `json:"email"`
	Role            string            `json:"role"`
	TripID          string            `json:"trip_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ValiditySeconds int64             `json:"validity_seconds,omitempty"`
}

// CreateInvitationResponse carries the stored invitation. Secret is only filled in
// non-production deployments.
type CreateInvitationResponse struct {
	Invitation   *Invitation `json:"invitation"`
	Secret       string      `json:"secret,omitempty"`
	EmailWarning string      `json:"email_warning,omitempty"`
}

type GetInvitationRequest struct {
	ID string `json:"id"`
}

type GetInvitationResponse struct {
	Invitation *Invitation `json:"invitation"`
}

type ListInvitationsRequest struct {
	Status    string `json:"status,omitempty"`
	Role      string `json:"role,omitempty"`
	Email     string `json:"email,omitempty"`
	InvitedBy string `json:"invited_by,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

type ListInvitationsResponse struct {
	Invitations []*Invitation `json:"invitations"`
	Total       int           `json:"total"`
}

type CancelInvitationRequest struct {
	ID string `json:"id"`
}

type CancelInvitationResponse struct{}

type ResendInvitationRequest struct {
	ID              string `json:"id"`
	ValiditySeconds int64  `json:"validity_seconds,omitempty"`
}

type ResendInvitationResponse struct {
	Invitation   *Invitation `json:"invitation"`
	Secret       string      `json:"secret,omitempty"`
	EmailWarning string      `json:"email_warning,omitempty"`
}

type ValidateInvitationRequest struct {
	Token string `json:"token"`
}

// ValidateInvitationResponse holds only what an acceptance form shows.
type ValidateInvitationResponse struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AcceptInvitationRequest struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type AcceptInvitationResponse struct {
	AccountID string `json:"account_id"`
}

// Encode converts a message into its Struct form.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from s. Top-level field names may be snake_case or camelCase.
func Decode(s *structpb.Struct, v any) error {
	m := s.AsMap()
	norm := make(map[string]any, len(m))
	for k, val := range m {
		norm[snakeCase(k)] = val
	}
	raw, err := json.Marshal(norm)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// snakeCase inserts an underscore at each lower-to-upper boundary: displayName -> display_name.
func snakeCase(s string) string {
	if strings.IndexFunc(s, unicode.IsUpper) < 0 {
		return s
	}
	var b strings.Builder
	prev := rune(0)
	for _, r := range s {
		if unicode.IsUpper(r) {
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}
