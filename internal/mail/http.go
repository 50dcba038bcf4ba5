package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// HTTPSender posts messages as JSON to a transactional email API.
type HTTPSender struct {
	APIKey     string
	BaseURL    string
	From       string
	HTTPClient *http.Client
}

// NewHTTPSender returns a sender for the API at baseURL authenticating with apiKey.
func NewHTTPSender(apiKey, baseURL, from string) *HTTPSender {
	return &HTTPSender{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		From:       from,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type httpPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Send posts msg. Any non-2xx response is an error carrying the status and body.
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	if s.APIKey == "" || s.BaseURL == "" {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(httpPayload{From: s.From, To: msg.To, Subject: msg.Subject, Text: msg.Text, HTML: msg.HTML})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mail: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
