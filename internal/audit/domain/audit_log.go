package domain

import "time"

// Invitation audit actions.
const (
	ActionInvitationCreated     = "invitation_created"
	ActionInvitationResent      = "invitation_resent"
	ActionInvitationCancelled   = "invitation_cancelled"
	ActionInvitationAccepted    = "invitation_accepted"
	ActionInvitationEmailFailed = "invitation_email_failed"
)

// ResourceInvitation is the resource name recorded for invitation events.
const ResourceInvitation = "invitation"

// AuditLog represents an audit event.
type AuditLog struct {
	ID         string
	ActorID    string
	Action     string
	Resource   string
	ResourceID string
	IP         string
	Metadata   string
	CreatedAt  time.Time
}
