package payments

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the canonical result of interpreting a provider signal.
// Amount is in the provider's own unit; Valid=false means the provider did
// not report one, which is different from a zero charge.
type Outcome struct {
	Status      Status
	Amount      decimal.NullDecimal
	Date        *time.Time
	Code        string
	Description string
}

func Succeeded(amount decimal.NullDecimal, date *time.Time, code, description string) Outcome {
	return Outcome{Status: StatusSuccess, Amount: amount, Date: date, Code: code, Description: description}
}

func Failed(code, description string) Outcome {
	return Outcome{Status: StatusFailure, Code: code, Description: description}
}

// Form is an auto-submitted POST the payer's browser must make to the provider.
type Form struct {
	Action string
	Fields map[string]string
}

// Initiation is what an adapter hands back after sending a payment to its provider.
type Initiation struct {
	RedirectURL       string
	Form              *Form
	ProviderReference string
	Metadata          map[string]any
}

// Claim is the result of offering a redirect callback to an adapter.
// Claimed=false means "not mine, try the next adapter".
type Claim struct {
	Claimed              bool
	TransactionReference string
	ProviderReference    string
	Outcome              Outcome
}

func Unclaimed() Claim { return Claim{} }

type WebhookKind int

const (
	// WebhookUnknown: the payload is not shaped for this adapter.
	WebhookUnknown WebhookKind = iota
	// WebhookNonActionable: recognized, but intentionally ignored. Stops dispatch.
	WebhookNonActionable
	// WebhookClaimed: Reference and Outcome are set.
	WebhookClaimed
)

func (k WebhookKind) String() string {
	switch k {
	case WebhookNonActionable:
		return "non_actionable"
	case WebhookClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

type WebhookClaim struct {
	Kind                 WebhookKind
	EventID              string
	EventType            string
	TransactionReference string
	ProviderReference    string
	Outcome              Outcome
}

func UnknownWebhook() WebhookClaim { return WebhookClaim{Kind: WebhookUnknown} }

func NonActionableWebhook(eventType string) WebhookClaim {
	return WebhookClaim{Kind: WebhookNonActionable, EventType: eventType}
}

// Webhook is an inbound push from some provider. Fields is the decoded body
// (JSON object or form values); Body and Header are kept for signature checks.
type Webhook struct {
	Header http.Header
	Body   []byte
	Fields map[string]any
}

// QueryResult: Known=false means the provider has no definitive answer yet.
type QueryResult struct {
	Known   bool
	Outcome Outcome
}

func NotYetKnown() QueryResult { return QueryResult{} }

// Adapter speaks one provider's protocol. Adapters that lack a capability
// return the negative tagged value (Unclaimed, UnknownWebhook) or
// ErrReQueryUnsupported.
type Adapter interface {
	Name() string
	// Multiplier converts the payer-facing amount into the provider's unit.
	Multiplier() decimal.Decimal

	Initiate(ctx context.Context, p Payment, callbackURL string) (Initiation, error)
	ConfirmFromCallback(ctx context.Context, params url.Values) (Claim, error)
	ClaimWebhook(ctx context.Context, w Webhook) (WebhookClaim, error)
	ReQuery(ctx context.Context, p Payment) (QueryResult, error)
	Resume(p Payment) (string, error)
}

// Pending is a claimed redirect whose provider has no definitive answer yet.
func Pending(description string) Outcome {
	return Outcome{Status: StatusUnsettled, Description: description}
}
