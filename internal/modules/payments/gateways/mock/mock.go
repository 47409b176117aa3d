// Package mock is a local gateway for development and tests. Its checkout
// page is a plain redirect back to the callback URL, and its webhooks are
// signed like Stripe's: X-Mock-Signature: t=<unix>,v1=<hex hmac-sha256 of "t.body">.
package mock

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/modules/payments/gateways"
)

const (
	Name = "Mock"

	SignatureHeader = "X-Mock-Signature"
	MetaCheckoutURL = "mock_checkout_url"

	DefaultTolerance = 5 * time.Minute
)

var multiplier = decimal.NewFromInt(100)

type Config struct {
	WebhookSecret string
	// CheckoutURL is where payers are sent; empty means straight back to
	// the callback with mock_status=success.
	CheckoutURL string
	Tolerance   time.Duration
}

type Adapter struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Adapter {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Adapter{cfg: cfg, now: time.Now}
}

func (a *Adapter) Name() string                { return Name }
func (a *Adapter) Multiplier() decimal.Decimal { return multiplier }

func (a *Adapter) Initiate(_ context.Context, p payments.Payment, callbackURL string) (payments.Initiation, error) {
	ref := "pay_" + randomHex(8)

	base := a.cfg.CheckoutURL
	status := ""
	if base == "" {
		base = callbackURL
		status = "success"
	}
	u, err := url.Parse(base)
	if err != nil {
		return payments.Initiation{}, fmt.Errorf("%s: checkout url: %w", Name, err)
	}
	q := u.Query()
	q.Set("mock_ref", ref)
	q.Set("mock_amount", strconv.FormatInt(gateways.MinorUnits(p.Amount, multiplier), 10))
	if status != "" {
		q.Set("mock_status", status)
	} else {
		q.Set("return_url", callbackURL)
	}
	u.RawQuery = q.Encode()

	return payments.Initiation{
		RedirectURL:       u.String(),
		ProviderReference: ref,
		Metadata:          map[string]any{MetaCheckoutURL: u.String()},
	}, nil
}

func (a *Adapter) ConfirmFromCallback(_ context.Context, params url.Values) (payments.Claim, error) {
	ref := params.Get("mock_ref")
	if ref == "" {
		return payments.Unclaimed(), nil
	}
	status := params.Get("mock_status")

	var o payments.Outcome
	switch status {
	case "success":
		now := a.now().UTC()
		o = payments.Succeeded(amountParam(params.Get("mock_amount")), &now, "00", "approved")
	case "failed", "declined":
		o = payments.Failed(status, "declined by mock provider")
	default:
		o = payments.Pending("awaiting mock provider")
	}
	return payments.Claim{Claimed: true, ProviderReference: ref, Outcome: o}, nil
}

func (a *Adapter) ClaimWebhook(_ context.Context, w payments.Webhook) (payments.WebhookClaim, error) {
	header := w.Header.Get(SignatureHeader)
	if header == "" || a.cfg.WebhookSecret == "" {
		return payments.UnknownWebhook(), nil
	}
	if err := a.verify(header, w.Body); err != nil {
		return payments.UnknownWebhook(), nil
	}

	eventType := gateways.String(w.Fields, "type")
	ref := gateways.String(w.Fields, "data.payment_ref")
	if eventType == "" {
		return payments.UnknownWebhook(), nil
	}

	var o payments.Outcome
	switch eventType {
	case "payment.succeeded":
		now := a.now().UTC()
		o = payments.Succeeded(gateways.Amount(w.Fields, "data.amount_cents"), &now, "00", eventType)
	case "payment.failed":
		o = payments.Failed("failed", firstNonEmpty(gateways.String(w.Fields, "data.reason"), eventType))
	default:
		return payments.NonActionableWebhook(eventType), nil
	}
	if ref == "" {
		return payments.UnknownWebhook(), nil
	}

	return payments.WebhookClaim{
		Kind:              payments.WebhookClaimed,
		EventID:           gateways.String(w.Fields, "id"),
		EventType:         eventType,
		ProviderReference: ref,
		Outcome:           o,
	}, nil
}

// ReQuery has nothing to ask; the mock provider only pushes.
func (a *Adapter) ReQuery(context.Context, payments.Payment) (payments.QueryResult, error) {
	return payments.NotYetKnown(), nil
}

func (a *Adapter) Resume(p payments.Payment) (string, error) {
	link := p.MetaString(MetaCheckoutURL)
	if link == "" {
		return "", fmt.Errorf("%w: %s payment %s", payments.ErrMissingPendingLink, Name, p.ID)
	}
	return link, nil
}

func (a *Adapter) verify(header string, body []byte) error {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("bad timestamp")
			}
			ts = n
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return fmt.Errorf("malformed signature header")
	}
	age := a.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > a.cfg.Tolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("bad signature encoding")
	}
	want, _ := hex.DecodeString(Sign(a.cfg.WebhookSecret, ts, body))
	if !hmac.Equal(got, want) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// Sign returns the hex v1 signature for body sent at unix time t.
func Sign(secret string, t int64, body []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(strconv.FormatInt(t, 10)))
	m.Write([]byte("."))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// SignatureHeaderValue builds a complete X-Mock-Signature value.
func SignatureHeaderValue(secret string, t int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", t, Sign(secret, t, body))
}

func amountParam(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

var _ payments.Adapter = (*Adapter)(nil)
