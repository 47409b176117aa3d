// Package midtrans drives Snap checkout. Payments start on the Snap redirect
// page, settle by HTTP notifications signed with the server key, and can be
// re-queried through the Core API status endpoint.
package midtrans

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/modules/payments/gateways"
)

const (
	Name = "Midtrans"

	MetaRedirectURL = "midtrans_redirect_url"
	MetaToken       = "midtrans_token"
)

var multiplier = decimal.NewFromInt(1)

// SnapAPI is the slice of snap.Client the adapter uses.
type SnapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// StatusAPI is the slice of coreapi.Client the adapter uses.
type StatusAPI interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

type Config struct {
	ServerKey  string
	Production bool
	Timeout    time.Duration
}

type Adapter struct {
	serverKey string
	snap      SnapAPI
	status    StatusAPI
}

func New(cfg Config) (*Adapter, error) {
	if cfg.ServerKey == "" {
		return nil, fmt.Errorf("%s: server key required: %w", Name, payments.ErrInvalidGatewayCredentials)
	}
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = midtrans.DefaultHttpTimeout
	}
	// The SDK never attaches ConfigOptions.Ctx to its request, so the client
	// timeout is the only bound on a provider call.
	hc := &midtrans.HttpClientImplementation{
		HttpClient: &http.Client{Timeout: timeout},
		Logger:     midtrans.GetDefaultLogger(env),
	}

	var s snap.Client
	s.New(cfg.ServerKey, env)
	s.HttpClient = hc
	var c coreapi.Client
	c.New(cfg.ServerKey, env)
	c.HttpClient = hc

	return NewWithClients(cfg.ServerKey, &s, &c), nil
}

// NewWithClients builds an adapter around caller-supplied API clients.
func NewWithClients(serverKey string, s SnapAPI, c StatusAPI) *Adapter {
	return &Adapter{serverKey: serverKey, snap: s, status: c}
}

func (a *Adapter) Name() string                { return Name }
func (a *Adapter) Multiplier() decimal.Decimal { return multiplier }

func (a *Adapter) Initiate(_ context.Context, p payments.Payment, callbackURL string) (payments.Initiation, error) {
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  p.TransactionReference,
			GrossAmt: gateways.MinorUnits(p.Amount, multiplier),
		},
		Callbacks: &snap.Callbacks{Finish: callbackURL},
	}
	if email, err := p.PayerEmail(); err == nil {
		cd := &midtrans.CustomerDetails{Email: email}
		if name, err := p.PayerName(); err == nil {
			cd.FName = name
		}
		if phone, err := p.PayerPhone(); err == nil {
			cd.Phone = phone
		}
		req.CustomerDetail = cd
	}

	res, merr := a.snap.CreateTransaction(req)
	if merr != nil {
		return payments.Initiation{}, wrap("create transaction", merr)
	}
	if res == nil || res.RedirectURL == "" {
		return payments.Initiation{}, fmt.Errorf("%w: %s snap returned no redirect url", payments.ErrGatewayUnavailable, Name)
	}

	return payments.Initiation{
		RedirectURL: res.RedirectURL,
		Metadata:    map[string]any{MetaRedirectURL: res.RedirectURL, MetaToken: res.Token},
	}, nil
}

// ConfirmFromCallback claims Snap finish redirects (?order_id=...&transaction_status=...).
// The query string is never trusted; the status is always fetched. The SDK
// cannot be canceled, so the status call is bounded by Config.Timeout only.
func (a *Adapter) ConfirmFromCallback(_ context.Context, params url.Values) (payments.Claim, error) {
	orderID := params.Get("order_id")
	if orderID == "" {
		return payments.Unclaimed(), nil
	}
	st, err := a.check(orderID)
	if err != nil {
		if gateways.IsNotFound(err) {
			return payments.Claim{Claimed: true, TransactionReference: orderID, Outcome: payments.Pending("transaction not found at provider")}, nil
		}
		return payments.Claim{}, err
	}
	return payments.Claim{
		Claimed:              true,
		TransactionReference: orderID,
		ProviderReference:    st.TransactionID,
		Outcome:              outcome(st.TransactionStatus, st.FraudStatus, st.StatusCode, st.StatusMessage, st.GrossAmount, st.TransactionTime),
	}, nil
}

// ClaimWebhook verifies the notification signature locally and makes no
// provider call.
func (a *Adapter) ClaimWebhook(_ context.Context, w payments.Webhook) (payments.WebhookClaim, error) {
	orderID := gateways.String(w.Fields, "order_id")
	sig := gateways.String(w.Fields, "signature_key")
	if orderID == "" || sig == "" {
		return payments.UnknownWebhook(), nil
	}
	statusCode := gateways.String(w.Fields, "status_code")
	gross := gateways.String(w.Fields, "gross_amount")
	if !VerifySignature(orderID, statusCode, gross, sig, a.serverKey) {
		return payments.UnknownWebhook(), nil
	}

	txStatus := gateways.String(w.Fields, "transaction_status")
	o := outcome(txStatus, gateways.String(w.Fields, "fraud_status"), statusCode,
		gateways.String(w.Fields, "status_message"), gross, gateways.String(w.Fields, "transaction_time"))
	if o.Status == payments.StatusUnsettled {
		return payments.NonActionableWebhook(txStatus), nil
	}

	txID := gateways.String(w.Fields, "transaction_id")
	return payments.WebhookClaim{
		Kind:                 payments.WebhookClaimed,
		EventID:              txID + ":" + txStatus,
		EventType:            txStatus,
		TransactionReference: orderID,
		ProviderReference:    txID,
		Outcome:              o,
	}, nil
}

func (a *Adapter) ReQuery(_ context.Context, p payments.Payment) (payments.QueryResult, error) {
	st, err := a.check(p.TransactionReference)
	if gateways.IsNotFound(err) {
		return payments.NotYetKnown(), nil
	}
	if err != nil {
		return payments.QueryResult{}, err
	}
	o := outcome(st.TransactionStatus, st.FraudStatus, st.StatusCode, st.StatusMessage, st.GrossAmount, st.TransactionTime)
	if o.Status == payments.StatusUnsettled {
		return payments.NotYetKnown(), nil
	}
	return payments.QueryResult{Known: true, Outcome: o}, nil
}

func (a *Adapter) Resume(p payments.Payment) (string, error) {
	link := p.MetaString(MetaRedirectURL)
	if link == "" {
		return "", fmt.Errorf("%w: %s payment %s", payments.ErrMissingPendingLink, Name, p.ID)
	}
	return link, nil
}

func (a *Adapter) check(orderID string) (*coreapi.TransactionStatusResponse, error) {
	st, merr := a.status.CheckTransaction(orderID)
	if merr != nil {
		return nil, wrap("check transaction", merr)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s returned empty status", payments.ErrGatewayUnavailable, Name)
	}
	if st.StatusCode == "404" {
		return nil, &gateways.APIError{Provider: Name, StatusCode: http.StatusNotFound, Body: st.StatusMessage}
	}
	return st, nil
}

// VerifySignature checks signature_key = sha512(order_id+status_code+gross_amount+server_key).
func VerifySignature(orderID, statusCode, grossAmount, signature, serverKey string) bool {
	expected := Signature(orderID, statusCode, grossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func outcome(txStatus, fraud, code, message, gross, when string) payments.Outcome {
	switch txStatus {
	case "settlement":
		return payments.Succeeded(amount(gross), gateways.Time(when), code, message)
	case "capture":
		if fraud == "" || fraud == "accept" {
			return payments.Succeeded(amount(gross), gateways.Time(when), code, message)
		}
		if fraud == "deny" {
			return payments.Failed(code, message)
		}
		return payments.Pending(message)
	case "deny", "cancel", "expire", "failure":
		return payments.Failed(code, txStatus+": "+message)
	default:
		// pending, authorize, refund states are not ours to settle
		return payments.Pending(message)
	}
}

func amount(gross string) decimal.NullDecimal {
	d, err := decimal.NewFromString(gross)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func wrap(op string, merr *midtrans.Error) error {
	code := merr.StatusCode
	if code == 0 {
		code = http.StatusBadGateway
	}
	return &gateways.APIError{Provider: Name, StatusCode: code, Body: op + ": " + merr.Message}
}

var _ payments.Adapter = (*Adapter)(nil)
