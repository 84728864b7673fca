package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultSendEndpoint = "https://api.brevo.com/v3/smtp/email"
	sendTimeout         = 10 * time.Second
)

const verificationHTML = `
<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 400px; margin: 0 auto; padding: 40px 20px;">
  <h2 style="color: #1A1714; margin-bottom: 8px;">Your verification code</h2>
  <p style="color: #6A6058; font-size: 14px; margin-bottom: 24px;">Enter this code to sign in:</p>
  <div style="background: #F5F0EB; border-radius: 12px; padding: 20px; text-align: center; margin-bottom: 24px;">
    <span style="font-size: 32px; font-weight: 600; letter-spacing: 8px; color: #1A1714;">%s</span>
  </div>
  <p style="color: #7A7067; font-size: 12px;">This code expires in 10 minutes. If you didn't request this, you can ignore this email.</p>
</div>
`

type address struct {
	Email string `json:"email"`
}

type sendRequest struct {
	Sender      address   `json:"sender"`
	To          []address `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
}

// Sender delivers transactional email through the Brevo HTTP API.
type Sender struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
}

// NewSender builds a sender against the API at endpoint (empty means the
// production Brevo endpoint).
func NewSender(apiKey, from, endpoint string) *Sender {
	if endpoint == "" {
		endpoint = defaultSendEndpoint
	}
	return &Sender{
		apiKey:   apiKey,
		from:     from,
		endpoint: endpoint,
		client:   &http.Client{Timeout: sendTimeout},
	}
}

// SendVerificationCode emails a 6-digit sign-in code to the recipient.
func (s *Sender) SendVerificationCode(ctx context.Context, to, code string) error {
	payload := sendRequest{
		Sender:      address{Email: s.from},
		To:          []address{{Email: to}},
		Subject:     fmt.Sprintf("Your verification code is %s", code),
		HTMLContent: fmt.Sprintf(verificationHTML, code),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email provider returned status %d", resp.StatusCode)
	}
	return nil
}
