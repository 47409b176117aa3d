// Package paystack is a redirect-and-verify gateway: the payer is sent to a
// hosted checkout, comes back with ?reference=..., and the adapter confirms
// the charge with the verify endpoint. charge.success webhooks are accepted
// too, once their HMAC-SHA512 signature checks out.
package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/modules/payments/gateways"
)

const (
	Name           = "Paystack"
	DefaultBaseURL = "https://api.paystack.co"

	MetaAuthorizationURL = "paystack_authorization_url"
	SignatureHeader      = "X-Paystack-Signature"
)

// amounts are sent in kobo (or the currency's lowest denomination)
var multiplier = decimal.NewFromInt(100)

type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

type Adapter struct {
	secret string
	client *gateways.Client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%s: secret key required: %w", Name, payments.ErrInvalidGatewayCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	secret := cfg.SecretKey
	return &Adapter{
		secret: secret,
		client: gateways.NewClient(Name, cfg.BaseURL, cfg.Timeout, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+secret)
		}),
	}, nil
}

func (a *Adapter) Name() string                { return Name }
func (a *Adapter) Multiplier() decimal.Decimal { return multiplier }

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type transaction struct {
	ID              int64   `json:"id"`
	Status          string  `json:"status"`
	Reference       string  `json:"reference"`
	Amount          *int64  `json:"amount"`
	Currency        string  `json:"currency"`
	GatewayResponse string  `json:"gateway_response"`
	PaidAt          *string `json:"paid_at"`
	CreatedAt       string  `json:"created_at"`
}

func (a *Adapter) Initiate(ctx context.Context, p payments.Payment, callbackURL string) (payments.Initiation, error) {
	email, err := p.PayerEmail()
	if err != nil {
		return payments.Initiation{}, err
	}

	body := map[string]any{
		"email":        email,
		"amount":       gateways.MinorUnits(p.Amount, multiplier),
		"currency":     p.Currency,
		"reference":    p.TransactionReference,
		"callback_url": callbackURL,
		"metadata":     map[string]any{"payment_id": p.ID},
	}

	var res envelope[initData]
	if err := a.client.DoJSON(ctx, http.MethodPost, "/transaction/initialize", body, &res); err != nil {
		return payments.Initiation{}, err
	}
	if !res.Status || res.Data.AuthorizationURL == "" {
		return payments.Initiation{}, fmt.Errorf("%w: %s initialize: %s", payments.ErrGatewayUnavailable, Name, res.Message)
	}

	return payments.Initiation{
		RedirectURL:       res.Data.AuthorizationURL,
		ProviderReference: res.Data.Reference,
		Metadata:          map[string]any{MetaAuthorizationURL: res.Data.AuthorizationURL},
	}, nil
}

// ConfirmFromCallback claims callbacks carrying Paystack's reference
// (or trxref) query parameter.
func (a *Adapter) ConfirmFromCallback(ctx context.Context, params url.Values) (payments.Claim, error) {
	ref := params.Get("reference")
	if ref == "" {
		ref = params.Get("trxref")
	}
	if ref == "" {
		return payments.Unclaimed(), nil
	}

	trx, err := a.verify(ctx, ref)
	if gateways.IsNotFound(err) {
		return payments.Claim{Claimed: true, TransactionReference: ref, Outcome: payments.Pending("transaction not found at provider")}, nil
	}
	if err != nil {
		return payments.Claim{}, err
	}
	return payments.Claim{
		Claimed:              true,
		TransactionReference: firstNonEmpty(trx.Reference, ref),
		ProviderReference:    ref,
		Outcome:              outcome(trx),
	}, nil
}

func (a *Adapter) ClaimWebhook(ctx context.Context, w payments.Webhook) (payments.WebhookClaim, error) {
	sig := w.Header.Get(SignatureHeader)
	if sig == "" || !a.validSignature(w.Body, sig) {
		return payments.UnknownWebhook(), nil
	}

	event := gateways.String(w.Fields, "event")
	if event == "" {
		return payments.UnknownWebhook(), nil
	}
	if event != "charge.success" {
		return payments.NonActionableWebhook(event), nil
	}

	ref := gateways.String(w.Fields, "data.reference")
	if ref == "" {
		return payments.UnknownWebhook(), nil
	}

	trx, err := a.verify(ctx, ref)
	if err != nil {
		return payments.WebhookClaim{}, err
	}
	o := outcome(trx)
	if o.Status == payments.StatusUnsettled {
		return payments.NonActionableWebhook(event), nil
	}

	// Paystack echoes the reference it was initialized with, which is ours
	return payments.WebhookClaim{
		Kind:                 payments.WebhookClaimed,
		EventID:              fmt.Sprintf("%s:%d", event, trx.ID),
		EventType:            event,
		TransactionReference: firstNonEmpty(trx.Reference, ref),
		ProviderReference:    ref,
		Outcome:              o,
	}, nil
}

func (a *Adapter) ReQuery(ctx context.Context, p payments.Payment) (payments.QueryResult, error) {
	ref := p.TransactionReference
	if p.ProviderReference != nil {
		ref = *p.ProviderReference
	}

	trx, err := a.verify(ctx, ref)
	if gateways.IsNotFound(err) {
		return payments.NotYetKnown(), nil
	}
	if err != nil {
		return payments.QueryResult{}, err
	}

	o := outcome(trx)
	if o.Status == payments.StatusUnsettled {
		return payments.NotYetKnown(), nil
	}
	return payments.QueryResult{Known: true, Outcome: o}, nil
}

func (a *Adapter) Resume(p payments.Payment) (string, error) {
	link := p.MetaString(MetaAuthorizationURL)
	if link == "" {
		return "", fmt.Errorf("%w: %s payment %s", payments.ErrMissingPendingLink, Name, p.ID)
	}
	return link, nil
}

func (a *Adapter) verify(ctx context.Context, ref string) (transaction, error) {
	var res envelope[transaction]
	if err := a.client.DoJSON(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(ref), nil, &res); err != nil {
		return transaction{}, err
	}
	if !res.Status {
		return transaction{}, fmt.Errorf("%w: %s verify: %s", payments.ErrGatewayUnavailable, Name, res.Message)
	}
	return res.Data, nil
}

func (a *Adapter) validSignature(body []byte, sig string) bool {
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	m := hmac.New(sha512.New, []byte(a.secret))
	m.Write(body)
	return hmac.Equal(m.Sum(nil), got)
}

// Sign computes the signature header value Paystack would send for body.
func Sign(secret string, body []byte) string {
	m := hmac.New(sha512.New, []byte(secret))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func outcome(trx transaction) payments.Outcome {
	switch trx.Status {
	case "success":
		var amount decimal.NullDecimal
		if trx.Amount != nil {
			amount = decimal.NewNullDecimal(decimal.NewFromInt(*trx.Amount))
		}
		date := gateways.Time(trx.CreatedAt)
		if trx.PaidAt != nil {
			if t := gateways.Time(*trx.PaidAt); t != nil {
				date = t
			}
		}
		return payments.Succeeded(amount, date, trx.Status, trx.GatewayResponse)
	case "failed", "reversed":
		return payments.Failed(trx.Status, trx.GatewayResponse)
	default:
		// abandoned, ongoing, pending, processing, queued
		return payments.Pending(trx.GatewayResponse)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ payments.Adapter = (*Adapter)(nil)
