// Package remita is a poll-based gateway. Initiation generates an RRR
// (Remita Retrieval Reference) and an auto-submitted form; the outcome is
// only ever learned by asking the status endpoint, either when the payer
// returns with ?RRR=... or when an operator re-queries.
package remita

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/modules/payments/gateways"
)

const (
	Name           = "Remita"
	DefaultBaseURL = "https://remitademo.net/remita/exapp/api/v1/send/api/echannelsvc"

	MetaRRR = "remita_rrr"
)

var multiplier = decimal.NewFromInt(1)

var (
	successCodes = map[string]bool{"00": true, "01": true}
	failureCodes = map[string]bool{"02": true, "022": true, "023": true, "998": true}
)

type Config struct {
	MerchantID    string
	ServiceTypeID string
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
}

type Adapter struct {
	cfg    Config
	client *gateways.Client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.MerchantID == "" || cfg.ServiceTypeID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: merchant id, service type id and api key required: %w", Name, payments.ErrInvalidGatewayCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{
		cfg:    cfg,
		client: gateways.NewClient(Name, cfg.BaseURL, cfg.Timeout, nil),
	}, nil
}

func (a *Adapter) Name() string                { return Name }
func (a *Adapter) Multiplier() decimal.Decimal { return multiplier }

type initResponse struct {
	StatusCode string `json:"statuscode"`
	RRR        string `json:"RRR"`
	Status     string `json:"status"`
}

type statusResponse struct {
	Status      string              `json:"status"`
	Message     string              `json:"message"`
	RRR         string              `json:"RRR"`
	OrderID     string              `json:"orderId"`
	Amount      decimal.NullDecimal `json:"amount"`
	PaymentDate string              `json:"paymentDate"`
}

func (a *Adapter) Initiate(ctx context.Context, p payments.Payment, callbackURL string) (payments.Initiation, error) {
	amount := p.Amount.Mul(multiplier).StringFixed(2)
	name, _ := p.PayerName()
	email, _ := p.PayerEmail()
	phone, _ := p.PayerPhone()

	body := map[string]any{
		"serviceTypeId": a.cfg.ServiceTypeID,
		"amount":        amount,
		"orderId":       p.TransactionReference,
		"payerName":     name,
		"payerEmail":    email,
		"payerPhone":    phone,
		"description":   p.Description,
	}
	hash := sha512Hex(a.cfg.MerchantID + a.cfg.ServiceTypeID + p.TransactionReference + amount + a.cfg.APIKey)

	raw, err := a.doWithAuth(ctx, http.MethodPost, "/merchant/api/paymentinit", body, hash)
	if err != nil {
		return payments.Initiation{}, err
	}
	var res initResponse
	if err := json.Unmarshal(stripJSONP(raw), &res); err != nil {
		return payments.Initiation{}, fmt.Errorf("%w: %s returned malformed response: %v", payments.ErrGatewayUnavailable, Name, err)
	}
	if res.StatusCode != "025" || res.RRR == "" {
		return payments.Initiation{}, fmt.Errorf("%w: %s paymentinit: %s %s", payments.ErrGatewayUnavailable, Name, res.StatusCode, res.Status)
	}

	rrr := strings.TrimSpace(res.RRR)
	return payments.Initiation{
		Form: &payments.Form{
			Action: a.client.BaseURL() + "/finalize.reg",
			Fields: map[string]string{
				"merchantId":  a.cfg.MerchantID,
				"hash":        sha512Hex(a.cfg.MerchantID + rrr + a.cfg.APIKey),
				"rrr":         rrr,
				"responseurl": callbackURL,
			},
		},
		ProviderReference: rrr,
		Metadata:          map[string]any{MetaRRR: rrr},
	}, nil
}

// ConfirmFromCallback claims redirects carrying RRR (Remita sends both RRR
// and orderID back to the response url).
func (a *Adapter) ConfirmFromCallback(ctx context.Context, params url.Values) (payments.Claim, error) {
	rrr := params.Get("RRR")
	if rrr == "" {
		rrr = params.Get("rrr")
	}
	if rrr == "" {
		return payments.Unclaimed(), nil
	}

	st, err := a.status(ctx, rrr)
	if gateways.IsNotFound(err) {
		return payments.Claim{Claimed: true, ProviderReference: rrr, Outcome: payments.Pending("transaction not found at provider")}, nil
	}
	if err != nil {
		return payments.Claim{}, err
	}
	return payments.Claim{
		Claimed:              true,
		TransactionReference: st.OrderID,
		ProviderReference:    rrr,
		Outcome:              outcome(st),
	}, nil
}

// ClaimWebhook never claims: Remita payments settle by polling only.
func (a *Adapter) ClaimWebhook(context.Context, payments.Webhook) (payments.WebhookClaim, error) {
	return payments.UnknownWebhook(), nil
}

func (a *Adapter) ReQuery(ctx context.Context, p payments.Payment) (payments.QueryResult, error) {
	if p.ProviderReference == nil || *p.ProviderReference == "" {
		// never reached Remita, nothing to ask about
		return payments.NotYetKnown(), nil
	}
	st, err := a.status(ctx, *p.ProviderReference)
	if gateways.IsNotFound(err) {
		return payments.NotYetKnown(), nil
	}
	if err != nil {
		return payments.QueryResult{}, err
	}
	o := outcome(st)
	if o.Status == payments.StatusUnsettled {
		return payments.NotYetKnown(), nil
	}
	return payments.QueryResult{Known: true, Outcome: o}, nil
}

// Resume is not possible: the payer must re-post the signed form.
func (a *Adapter) Resume(p payments.Payment) (string, error) {
	return "", fmt.Errorf("%w: %s payments are resumed by form post (payment %s)", payments.ErrMissingPendingLink, Name, p.ID)
}

func (a *Adapter) status(ctx context.Context, rrr string) (statusResponse, error) {
	hash := sha512Hex(rrr + a.cfg.APIKey + a.cfg.MerchantID)
	path := fmt.Sprintf("/%s/%s/%s/status.reg", url.PathEscape(a.cfg.MerchantID), url.PathEscape(rrr), hash)

	raw, err := a.client.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return statusResponse{}, err
	}
	var st statusResponse
	if err := json.Unmarshal(stripJSONP(raw), &st); err != nil {
		return statusResponse{}, fmt.Errorf("%w: %s returned malformed status: %v", payments.ErrGatewayUnavailable, Name, err)
	}
	return st, nil
}

func (a *Adapter) doWithAuth(ctx context.Context, method, path string, body any, hash string) ([]byte, error) {
	c := gateways.NewClient(Name, a.client.BaseURL(), a.cfg.Timeout, func(r *http.Request) {
		r.Header.Set("Authorization", "remitaConsumerKey="+a.cfg.MerchantID+",remitaConsumerToken="+hash)
	})
	return c.Do(ctx, method, path, body)
}

func outcome(st statusResponse) payments.Outcome {
	switch {
	case successCodes[st.Status]:
		return payments.Succeeded(st.Amount, gateways.Time(st.PaymentDate), st.Status, st.Message)
	case failureCodes[st.Status]:
		return payments.Failed(st.Status, st.Message)
	default:
		return payments.Pending(st.Message)
	}
}

// stripJSONP unwraps Remita's `jsonp ({...})` responses.
func stripJSONP(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if i := strings.Index(s, "("); i >= 0 && strings.HasSuffix(s, ")") && !strings.HasPrefix(s, "{") {
		s = s[i+1 : len(s)-1]
	}
	return []byte(strings.TrimSpace(s))
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

var _ payments.Adapter = (*Adapter)(nil)
