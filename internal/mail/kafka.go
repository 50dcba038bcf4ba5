package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSender queues messages on a topic for the mail worker to deliver. Messages hold the
// plaintext invitation link, so the topic retention must not outlive the invitation validity.
type KafkaSender struct {
	writer *kafka.Writer
}

// NewKafkaSender returns a sender writing to topic, or nil when brokers or topic are unset.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaSender{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

// Send serializes msg as JSON keyed by recipient so one recipient's mails stay ordered.
func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.writer == nil {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.To), Value: payload})
}

// Close closes the writer. Safe on a nil sender.
func (s *KafkaSender) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

// MessageReader is the subset of *kafka.Reader used by Relay.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Relay reads queued messages and hands each to sender until ctx is done. Delivery is tried
// up to relayAttempts times; the message is committed afterwards whether or not it went out.
func Relay(ctx context.Context, r MessageReader, sender Sender, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("mail relay: fetch: %w", err)
		}
		var msg Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			logger.ErrorContext(ctx, "dropping undecodable mail message", "offset", m.Offset, "error", err)
		} else {
			deliver(ctx, sender, msg, logger)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("mail relay: commit: %w", err)
		}
	}
}

const relayAttempts = 3

var relayBackoff = 500 * time.Millisecond

func deliver(ctx context.Context, sender Sender, msg Message, logger *slog.Logger) {
	var err error
	for attempt := 1; attempt <= relayAttempts; attempt++ {
		if err = sender.Send(ctx, msg); err == nil {
			return
		}
		if attempt == relayAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * relayBackoff):
		}
	}
	logger.WarnContext(ctx, "mail delivery failed",
		"operation", "relay_invitation_email",
		"outcome", "failure",
		"invitation_id", msg.InvitationID,
		"attempts", relayAttempts,
		"error", err,
	)
}
