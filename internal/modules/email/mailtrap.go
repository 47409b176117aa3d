package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MailtrapProvider sends through Mailtrap's HTTP sending API.
type MailtrapProvider struct {
	apiURL   string
	apiKey   string
	fromAddr string
	fromName string
	client   *http.Client
}

type MailtrapPayload struct {
	From     PersonInfo        `json:"from"`
	To       []PersonInfo      `json:"to"`
	Subject  string            `json:"subject"`
	Text     string            `json:"text,omitempty"`
	HTML     string            `json:"html,omitempty"`
	Category string            `json:"category,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

type PersonInfo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// NewMailtrapProvider: apiURL is e.g. https://send.api.mailtrap.io/api/send.
func NewMailtrapProvider(apiURL, apiKey, fromAddr, fromName string) *MailtrapProvider {
	return &MailtrapProvider{
		apiURL:   apiURL,
		apiKey:   apiKey,
		fromAddr: fromAddr,
		fromName: fromName,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *MailtrapProvider) Send(ctx context.Context, msg Message) error {
	if m.apiURL == "" || m.apiKey == "" {
		return fmt.Errorf("mailtrap credentials not configured")
	}

	payload := MailtrapPayload{
		From:     PersonInfo{Email: m.fromAddr, Name: m.fromName},
		To:       []PersonInfo{{Email: msg.To, Name: msg.ToName}},
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
		Category: "Payment receipt",
		Headers:  msg.Headers,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return fmt.Errorf("mailtrap API error: %d", res.StatusCode)
	}
	return nil
}
