// Package mail delivers invitation emails. A failed send never fails the invitation operation
// that triggered it; the invitation can be resent.
package mail

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Message is one outbound email.
type Message struct {
	To           string `json:"to"`
	Subject      string `json:"subject"`
	Text         string `json:"text"`
	HTML         string `json:"html,omitempty"`
	InvitationID string `json:"invitation_id,omitempty"`
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNotConfigured is returned by senders missing required settings.
var ErrNotConfigured = errors.New("mail: sender not configured")

// DefaultSendTimeout bounds one synchronous delivery attempt made on a request path.
const DefaultSendTimeout = 5 * time.Second

// LogSender logs the envelope instead of sending. Bodies carry the secret and are never logged.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "invitation email (log only)",
		"to", msg.To,
		"subject", msg.Subject,
		"invitation_id", msg.InvitationID,
	)
	return nil
}
