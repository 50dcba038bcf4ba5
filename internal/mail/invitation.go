package mail

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// InvitationEmail holds what goes into an invitation email.
type InvitationEmail struct {
	InvitationID string
	To           string
	Role         string
	InviterName  string
	Secret       string
	ExpiresAt    time.Time
	Resent       bool
}

// AcceptURL joins base and the secret as the token query parameter.
func AcceptURL(base, secret string) string {
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(secret)
}

// NewInvitationMessage renders e into a Message linking to acceptBaseURL.
func NewInvitationMessage(e InvitationEmail, acceptBaseURL string) Message {
	inviter := e.InviterName
	if inviter == "" {
		inviter = "An administrator"
	}
	subject := "You have been invited to the travel CMS"
	if e.Resent {
		subject = "Your travel CMS invitation (new link)"
	}
	role := strings.ReplaceAll(e.Role, "_", " ")
	link := AcceptURL(acceptBaseURL, e.Secret)
	if link == "" {
		link = e.Secret
	}
	expires := e.ExpiresAt.UTC().Format("2 Jan 2006 15:04 MST")

	var text strings.Builder
	fmt.Fprintf(&text, "%s has invited you to join the travel CMS as %s.\n\n", inviter, role)
	fmt.Fprintf(&text, "Accept the invitation: %s\n\n", link)
	fmt.Fprintf(&text, "This link expires on %s and can be used once.\n", expires)
	if e.Resent {
		text.WriteString("Any earlier invitation link you received no longer works.\n")
	}
	return Message{
		To:           e.To,
		Subject:      subject,
		Text:         text.String(),
		InvitationID: e.InvitationID,
	}
}
