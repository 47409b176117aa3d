package midtrans

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/modules/payments/gateways"
)

const serverKey = "SB-Mid-server-test"

type MockSnap struct {
	CreateTransactionFunc func(req *snap.Request) (*snap.Response, *midtrans.Error)
}

func (m *MockSnap) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	return m.CreateTransactionFunc(req)
}

type MockStatus struct {
	CheckTransactionFunc func(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

func (m *MockStatus) CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
	return m.CheckTransactionFunc(orderID)
}

// statusFor answers CheckTransaction from a map of order id to transaction status.
func statusFor(states map[string]string) *MockStatus {
	return &MockStatus{CheckTransactionFunc: func(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
		st, ok := states[orderID]
		if !ok {
			return &coreapi.TransactionStatusResponse{StatusCode: "404", StatusMessage: "Transaction doesn't exist."}, nil
		}
		return &coreapi.TransactionStatusResponse{
			StatusCode:        "200",
			StatusMessage:     "Success",
			TransactionID:     "tx-" + orderID,
			OrderID:           orderID,
			TransactionStatus: st,
			GrossAmount:       "150000.00",
			TransactionTime:   "2026-02-01 10:00:00",
		}, nil
	}}
}

func TestNew_RequiresServerKey(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, payments.ErrInvalidGatewayCredentials) {
		t.Fatalf("err = %v", err)
	}
}

func TestNew_ClientTimeout(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"configured", 7 * time.Second, 7 * time.Second},
		{"default", 0, midtrans.DefaultHttpTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(Config{ServerKey: serverKey, Timeout: tt.in})
			if err != nil {
				t.Fatal(err)
			}
			s, ok := a.snap.(*snap.Client)
			if !ok {
				t.Fatalf("snap client = %T", a.snap)
			}
			c, ok := a.status.(*coreapi.Client)
			if !ok {
				t.Fatalf("status client = %T", a.status)
			}
			for name, hc := range map[string]midtrans.HttpClient{"snap": s.HttpClient, "coreapi": c.HttpClient} {
				impl, ok := hc.(*midtrans.HttpClientImplementation)
				if !ok || impl.HttpClient == midtrans.DefaultGoHttpClient {
					t.Fatalf("%s uses the shared SDK client", name)
				}
				if impl.HttpClient.Timeout != tt.want {
					t.Errorf("%s timeout = %v, want %v", name, impl.HttpClient.Timeout, tt.want)
				}
			}
		})
	}
}

func TestInitiate(t *testing.T) {
	var got *snap.Request
	s := &MockSnap{CreateTransactionFunc: func(req *snap.Request) (*snap.Response, *midtrans.Error) {
		got = req
		return &snap.Response{Token: "tok", RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/tok"}, nil
	}}
	a := NewWithClients(serverKey, s, statusFor(nil))

	p := payments.Payment{
		ID: "p1", Amount: decimal.NewFromInt(150000), Currency: "IDR", TransactionReference: "MT-1",
		Metadata: map[string]any{payments.MetaPayerEmail: "budi@example.com", payments.MetaPayerName: "Budi"},
	}
	started, err := a.Initiate(context.Background(), p, "https://shop/cb")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if got.TransactionDetails.OrderID != "MT-1" || got.TransactionDetails.GrossAmt != 150000 {
		t.Fatalf("details = %+v", got.TransactionDetails)
	}
	if got.Callbacks == nil || got.Callbacks.Finish != "https://shop/cb" {
		t.Fatalf("callbacks = %+v", got.Callbacks)
	}
	if got.CustomerDetail == nil || got.CustomerDetail.FName != "Budi" {
		t.Fatalf("customer = %+v", got.CustomerDetail)
	}
	link, err := a.Resume(payments.Payment{Metadata: started.Metadata})
	if err != nil || link != started.RedirectURL {
		t.Fatalf("resume = %q, %v", link, err)
	}
}

func TestInitiate_ProviderError(t *testing.T) {
	s := &MockSnap{CreateTransactionFunc: func(*snap.Request) (*snap.Response, *midtrans.Error) {
		return nil, &midtrans.Error{Message: "unauthorized", StatusCode: http.StatusUnauthorized}
	}}
	a := NewWithClients(serverKey, s, statusFor(nil))
	_, err := a.Initiate(context.Background(), payments.Payment{Amount: decimal.NewFromInt(1)}, "cb")
	if !errors.Is(err, payments.ErrInvalidGatewayCredentials) {
		t.Fatalf("err = %v", err)
	}

	s.CreateTransactionFunc = func(*snap.Request) (*snap.Response, *midtrans.Error) {
		return nil, &midtrans.Error{Message: "dial tcp: timeout"}
	}
	_, err = a.Initiate(context.Background(), payments.Payment{Amount: decimal.NewFromInt(1)}, "cb")
	if !errors.Is(err, payments.ErrGatewayUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestConfirmFromCallback(t *testing.T) {
	a := NewWithClients(serverKey, &MockSnap{}, statusFor(map[string]string{"MT-2": "settlement", "MT-3": "expire"}))
	ctx := context.Background()

	if c, err := a.ConfirmFromCallback(ctx, url.Values{"reference": {"x"}}); err != nil || c.Claimed {
		t.Fatalf("foreign claim = %+v, %v", c, err)
	}

	// the query string status is ignored
	c, err := a.ConfirmFromCallback(ctx, url.Values{"order_id": {"MT-2"}, "transaction_status": {"deny"}})
	if err != nil || c.Outcome.Status != payments.StatusSuccess || c.ProviderReference != "tx-MT-2" {
		t.Fatalf("claim = %+v, %v", c, err)
	}
	if !c.Outcome.Amount.Decimal.Equal(decimal.NewFromInt(150000)) {
		t.Fatalf("amount = %v", c.Outcome.Amount)
	}
	if c, _ := a.ConfirmFromCallback(ctx, url.Values{"order_id": {"MT-3"}}); c.Outcome.Status != payments.StatusFailure {
		t.Fatalf("expire claim = %+v", c)
	}
	c, err = a.ConfirmFromCallback(ctx, url.Values{"order_id": {"MT-404"}})
	if err != nil || !c.Claimed || c.Outcome.Status != payments.StatusUnsettled {
		t.Fatalf("missing claim = %+v, %v", c, err)
	}
}

func notification(status, fraud, key string) payments.Webhook {
	fields := map[string]any{
		"order_id":           "MT-5",
		"status_code":        "200",
		"gross_amount":       "150000.00",
		"transaction_status": status,
		"transaction_id":     "tx-5",
		"fraud_status":       fraud,
	}
	fields["signature_key"] = Signature("MT-5", "200", "150000.00", key)
	return payments.Webhook{Header: http.Header{}, Fields: fields}
}

func TestClaimWebhook(t *testing.T) {
	a := NewWithClients(serverKey, &MockSnap{}, statusFor(nil))
	ctx := context.Background()

	tests := []struct {
		name   string
		w      payments.Webhook
		kind   payments.WebhookKind
		status payments.Status
	}{
		{"settlement", notification("settlement", "", serverKey), payments.WebhookClaimed, payments.StatusSuccess},
		{"capture accepted", notification("capture", "accept", serverKey), payments.WebhookClaimed, payments.StatusSuccess},
		{"capture denied", notification("capture", "deny", serverKey), payments.WebhookClaimed, payments.StatusFailure},
		{"capture challenged", notification("capture", "challenge", serverKey), payments.WebhookNonActionable, ""},
		{"cancel", notification("cancel", "", serverKey), payments.WebhookClaimed, payments.StatusFailure},
		{"pending", notification("pending", "", serverKey), payments.WebhookNonActionable, ""},
		{"bad signature", notification("settlement", "", "other-key"), payments.WebhookUnknown, ""},
		{"foreign payload", payments.Webhook{Fields: map[string]any{"event": "charge.success"}}, payments.WebhookUnknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := a.ClaimWebhook(ctx, tt.w)
			if err != nil {
				t.Fatal(err)
			}
			if c.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", c.Kind, tt.kind)
			}
			if tt.kind == payments.WebhookClaimed {
				if c.Outcome.Status != tt.status || c.TransactionReference != "MT-5" {
					t.Fatalf("claim = %+v", c)
				}
			}
		})
	}
}

func TestReQuery(t *testing.T) {
	a := NewWithClients(serverKey, &MockSnap{}, statusFor(map[string]string{"MT-6": "settlement", "MT-7": "pending"}))
	ctx := context.Background()

	q, err := a.ReQuery(ctx, payments.Payment{TransactionReference: "MT-6"})
	if err != nil || !q.Known || q.Outcome.Status != payments.StatusSuccess {
		t.Fatalf("q = %+v, %v", q, err)
	}
	for _, ref := range []string{"MT-7", "MT-404"} {
		if q, err := a.ReQuery(ctx, payments.Payment{TransactionReference: ref}); err != nil || q.Known {
			t.Fatalf("%s q = %+v, %v", ref, q, err)
		}
	}

	down := NewWithClients(serverKey, &MockSnap{}, &MockStatus{CheckTransactionFunc: func(string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
		return nil, &midtrans.Error{Message: "bad gateway", StatusCode: 503}
	}})
	_, err = down.ReQuery(ctx, payments.Payment{TransactionReference: "MT-6"})
	var ae *gateways.APIError
	if !errors.As(err, &ae) || ae.StatusCode != 503 {
		t.Fatalf("err = %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	sig := Signature("o", "200", "10.00", "k")
	if !VerifySignature("o", "200", "10.00", sig, "k") {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature("o", "201", "10.00", sig, "k") {
		t.Fatal("tampered signature accepted")
	}
}
