// Package flutterwave is a webhook-push gateway. Payments are started on the
// hosted payment link, settled by charge.completed webhooks (authenticated by
// the verif-hash header) and always re-verified by tx_ref before an outcome
// is reported.
package flutterwave

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/modules/payments/gateways"
)

const (
	Name           = "Flutterwave"
	DefaultBaseURL = "https://api.flutterwave.com/v3"

	MetaPaymentLink = "flutterwave_payment_link"
	HashHeader      = "verif-hash"
)

var multiplier = decimal.NewFromInt(1)

type Config struct {
	SecretKey  string
	SecretHash string
	BaseURL    string
	Timeout    time.Duration
}

type Adapter struct {
	secretHash string
	client     *gateways.Client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%s: secret key required: %w", Name, payments.ErrInvalidGatewayCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	key := cfg.SecretKey
	return &Adapter{
		secretHash: cfg.SecretHash,
		client: gateways.NewClient(Name, cfg.BaseURL, cfg.Timeout, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+key)
		}),
	}, nil
}

func (a *Adapter) Name() string                { return Name }
func (a *Adapter) Multiplier() decimal.Decimal { return multiplier }

type response[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type linkData struct {
	Link string `json:"link"`
}

type transaction struct {
	ID                int64               `json:"id"`
	TxRef             string              `json:"tx_ref"`
	FlwRef            string              `json:"flw_ref"`
	Status            string              `json:"status"`
	Amount            decimal.NullDecimal `json:"amount"`
	Currency          string              `json:"currency"`
	ProcessorResponse string              `json:"processor_response"`
	CreatedAt         string              `json:"created_at"`
}

func (a *Adapter) Initiate(ctx context.Context, p payments.Payment, callbackURL string) (payments.Initiation, error) {
	email, err := p.PayerEmail()
	if err != nil {
		return payments.Initiation{}, err
	}
	customer := map[string]any{"email": email}
	if name, err := p.PayerName(); err == nil {
		customer["name"] = name
	}
	if phone, err := p.PayerPhone(); err == nil {
		customer["phonenumber"] = phone
	}

	body := map[string]any{
		"tx_ref":         p.TransactionReference,
		"amount":         p.Amount.Mul(multiplier).String(),
		"currency":       p.Currency,
		"redirect_url":   callbackURL,
		"customer":       customer,
		"customizations": map[string]any{"title": p.Description},
		"meta":           map[string]any{"payment_id": p.ID},
	}

	var res response[linkData]
	if err := a.client.DoJSON(ctx, http.MethodPost, "/payments", body, &res); err != nil {
		return payments.Initiation{}, err
	}
	if res.Status != "success" || res.Data.Link == "" {
		return payments.Initiation{}, fmt.Errorf("%w: %s payments: %s", payments.ErrGatewayUnavailable, Name, res.Message)
	}

	return payments.Initiation{
		RedirectURL: res.Data.Link,
		Metadata:    map[string]any{MetaPaymentLink: res.Data.Link},
	}, nil
}

// ConfirmFromCallback claims redirects carrying tx_ref.
func (a *Adapter) ConfirmFromCallback(ctx context.Context, params url.Values) (payments.Claim, error) {
	ref := params.Get("tx_ref")
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
		TransactionReference: ref,
		Outcome:              outcome(trx),
	}, nil
}

// ClaimWebhook accepts both the v3 envelope ({"event": ..., "data": {...}})
// and the flat legacy body ({"tx_ref": ..., "status": ...}).
func (a *Adapter) ClaimWebhook(ctx context.Context, w payments.Webhook) (payments.WebhookClaim, error) {
	if a.secretHash == "" || w.Header.Get(HashHeader) != a.secretHash {
		return payments.UnknownWebhook(), nil
	}

	event := gateways.String(w.Fields, "event", "event.type")
	data := gateways.Map(w.Fields, "data")
	if data == nil {
		data = w.Fields
	}
	if event != "" && event != "charge.completed" && event != "CARD_TRANSACTION" {
		return payments.NonActionableWebhook(event), nil
	}

	ref := gateways.String(data, "tx_ref", "txRef")
	if ref == "" {
		return payments.UnknownWebhook(), nil
	}

	trx, err := a.verify(ctx, ref)
	if err != nil {
		return payments.WebhookClaim{}, err
	}
	o := outcome(trx)
	if o.Status == payments.StatusUnsettled {
		return payments.NonActionableWebhook("charge.pending"), nil
	}

	eventID := gateways.String(data, "id")
	if eventID == "" {
		eventID = fmt.Sprint(trx.ID)
	}
	return payments.WebhookClaim{
		Kind:                 payments.WebhookClaimed,
		EventID:              "charge.completed:" + eventID,
		EventType:            "charge.completed",
		TransactionReference: ref,
		Outcome:              o,
	}, nil
}

func (a *Adapter) ReQuery(ctx context.Context, p payments.Payment) (payments.QueryResult, error) {
	trx, err := a.verify(ctx, p.TransactionReference)
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
	link := p.MetaString(MetaPaymentLink)
	if link == "" {
		return "", fmt.Errorf("%w: %s payment %s", payments.ErrMissingPendingLink, Name, p.ID)
	}
	return link, nil
}

func (a *Adapter) verify(ctx context.Context, txRef string) (transaction, error) {
	var res response[transaction]
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(txRef)
	if err := a.client.DoJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return transaction{}, err
	}
	if res.Status != "success" {
		return transaction{}, fmt.Errorf("%w: %s verify: %s", payments.ErrGatewayUnavailable, Name, res.Message)
	}
	return res.Data, nil
}

func outcome(trx transaction) payments.Outcome {
	switch trx.Status {
	case "successful":
		return payments.Succeeded(
			trx.Amount,
			gateways.Time(trx.CreatedAt),
			trx.Status,
			trx.ProcessorResponse,
		)
	case "failed", "cancelled":
		return payments.Failed(trx.Status, trx.ProcessorResponse)
	default:
		return payments.Pending(trx.ProcessorResponse)
	}
}

var _ payments.Adapter = (*Adapter)(nil)
