package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBrevoEndpoint is Brevo's transactional email API.
const DefaultBrevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoConfig configures a BrevoMailer.
type BrevoConfig struct {
	APIKey      string
	Endpoint    string // defaults to DefaultBrevoEndpoint
	SenderName  string
	SenderEmail string
}

// BrevoMailer delivers email through the Brevo transactional API.
type BrevoMailer struct {
	cfg    BrevoConfig
	client *http.Client
}

// NewBrevoMailer creates a BrevoMailer with a 10-second HTTP timeout.
func NewBrevoMailer(cfg BrevoConfig) *BrevoMailer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultBrevoEndpoint
	}
	return &BrevoMailer{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoEmail struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

func (b *BrevoMailer) SendMail(ctx context.Context, msg Message) error {
	body, err := json.Marshal(brevoEmail{
		Sender:      brevoContact{Name: b.cfg.SenderName, Email: b.cfg.SenderEmail},
		To:          []brevoContact{{Name: msg.ToName, Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("brevo: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("brevo: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", b.cfg.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("brevo: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (b *BrevoMailer) Name() string { return "brevo" }
