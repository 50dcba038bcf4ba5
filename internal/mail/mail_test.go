package mail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestHTTPSender_Success(t *testing.T) {
	var got httpPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer k1" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s := NewHTTPSender("k1", server.URL, "noreply@travel.test")
	if err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "hi", Text: "body"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.From != "noreply@travel.test" || got.To != "a@example.com" || got.Subject != "hi" {
		t.Errorf("payload = %+v", got)
	}
}

func TestHTTPSender_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad recipient"}`))
	}))
	defer server.Close()

	err := NewHTTPSender("k1", server.URL, "").Send(context.Background(), Message{To: "x"})
	if err == nil || !strings.Contains(err.Error(), "status=400") || !strings.Contains(err.Error(), "bad recipient") {
		t.Errorf("Send err = %v", err)
	}
}

func TestHTTPSender_NotConfigured(t *testing.T) {
	if err := NewHTTPSender("", "http://x", "").Send(context.Background(), Message{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Send err = %v, want ErrNotConfigured", err)
	}
}

func TestNewKafkaSender_Unconfigured(t *testing.T) {
	if s := NewKafkaSender(nil, "topic"); s != nil {
		t.Error("expected nil sender without brokers")
	}
	var s *KafkaSender
	if err := s.Send(context.Background(), Message{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("nil Send err = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("nil Close err = %v", err)
	}
}

func TestNewInvitationMessage(t *testing.T) {
	msg := NewInvitationMessage(InvitationEmail{
		InvitationID: "inv-1",
		To:           "a@example.com",
		Role:         "content_manager",
		InviterName:  "Dana",
		Secret:       "s3cr3t+/",
		ExpiresAt:    time.Date(2026, 4, 4, 10, 0, 0, 0, time.UTC),
	}, "https://cms.example/accept")
	if msg.To != "a@example.com" || msg.InvitationID != "inv-1" {
		t.Errorf("envelope = %+v", msg)
	}
	if !strings.Contains(msg.Text, "https://cms.example/accept?token=s3cr3t%2B%2F") {
		t.Errorf("text missing escaped accept link: %s", msg.Text)
	}
	if !strings.Contains(msg.Text, "Dana") || !strings.Contains(msg.Text, "content manager") {
		t.Errorf("text = %s", msg.Text)
	}
	resent := NewInvitationMessage(InvitationEmail{Secret: "x", Resent: true}, "")
	if !strings.Contains(resent.Text, "no longer works") || !strings.Contains(resent.Subject, "new link") {
		t.Errorf("resent = %+v", resent)
	}
}

func TestAcceptURL(t *testing.T) {
	if got := AcceptURL("https://a/b?x=1", "t"); got != "https://a/b?x=1&token=t" {
		t.Errorf("AcceptURL = %q", got)
	}
	if got := AcceptURL("", "t"); got != "" {
		t.Errorf("AcceptURL(empty) = %q", got)
	}
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []Message
	fails int
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("smtp down")
	}
	s.sent = append(s.sent, msg)
	return nil
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func TestRelay(t *testing.T) {
	relayBackoff = time.Millisecond
	good, _ := json.Marshal(Message{To: "a@example.com", InvitationID: "inv-1"})
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("not json")},
		{Offset: 3, Value: good},
	}}
	sender := &recordingSender{fails: 1}
	err := Relay(context.Background(), r, sender, nil)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Relay err = %v, want wrapped EOF", err)
	}
	if len(sender.sent) != 2 {
		t.Errorf("delivered %d messages, want 2", len(sender.sent))
	}
	if len(r.committed) != 3 {
		t.Errorf("committed %v, want all three offsets", r.committed)
	}
}

func TestLogSender(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), Message{To: "a@example.com", Text: "secret link"}); err != nil {
		t.Errorf("Send: %v", err)
	}
}
