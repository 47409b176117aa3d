// Package email composes the payment receipt sent to payers and hands it to
// a Sender (SMTP through internal/mailer, or the Mailtrap HTTP API).
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
	Headers map[string]string
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Receipt is the data a payment receipt is rendered from. Amount and
// ProviderAmount are preformatted major-unit strings.
type Receipt struct {
	PayerName      string
	PayerEmail     string
	Reference      string
	Gateway        string
	Description    string
	Amount         string
	Currency       string
	ProviderAmount string
	PaidAt         string
	Code           string
	Message        string
}

var receiptHTML = template.Must(template.New("receipt").Parse(`<html>
  <body style="font-family: sans-serif;">
    <h2>Payment received</h2>
    <p>Hello {{if .PayerName}}{{.PayerName}}{{else}}there{{end}},</p>
    <p>We have received your payment{{if .Description}} for <strong>{{.Description}}</strong>{{end}}.</p>
    <table cellpadding="4">
      <tr><td>Reference</td><td><strong>{{.Reference}}</strong></td></tr>
      <tr><td>Amount</td><td>{{.Amount}} {{.Currency}}</td></tr>
      <tr><td>Paid with</td><td>{{.Gateway}}</td></tr>
      {{if .PaidAt}}<tr><td>Date</td><td>{{.PaidAt}}</td></tr>{{end}}
      {{if .Message}}<tr><td>Provider message</td><td>{{.Message}}</td></tr>{{end}}
    </table>
    <p>Thank you.</p>
  </body>
</html>
`))

var receiptText = texttemplate.Must(texttemplate.New("receipt").Parse(`Hello {{if .PayerName}}{{.PayerName}}{{else}}there{{end}},

We have received your payment{{if .Description}} for {{.Description}}{{end}}.

Reference: {{.Reference}}
Amount:    {{.Amount}} {{.Currency}}
Paid with: {{.Gateway}}
{{if .PaidAt}}Date:      {{.PaidAt}}
{{end}}
Thank you.
`))

// RenderReceipt builds the receipt message for r.
func RenderReceipt(r Receipt) (Message, error) {
	if r.PayerEmail == "" {
		return Message{}, fmt.Errorf("email: receipt for %s has no recipient", r.Reference)
	}
	var html, text bytes.Buffer
	if err := receiptHTML.Execute(&html, r); err != nil {
		return Message{}, fmt.Errorf("email: render receipt html: %w", err)
	}
	if err := receiptText.Execute(&text, r); err != nil {
		return Message{}, fmt.Errorf("email: render receipt text: %w", err)
	}
	return Message{
		To:      r.PayerEmail,
		ToName:  r.PayerName,
		Subject: "Payment receipt " + r.Reference,
		Text:    text.String(),
		HTML:    html.String(),
		Headers: map[string]string{"X-Payment-Reference": r.Reference},
	}, nil
}
