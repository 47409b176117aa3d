package flutterwave

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
)

const (
	testKey  = "FLWSECK_TEST-1"
	testHash = "verif-secret"
)

func fakeAPI(t *testing.T, statuses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/payments":
			var in map[string]any
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in["amount"] != "1500" {
				t.Errorf("amount = %v", in["amount"])
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"data":   map[string]any{"link": "https://checkout.flutterwave.com/v3/hosted/pay/xyz"},
			})
		case "/transactions/verify_by_reference":
			ref := r.URL.Query().Get("tx_ref")
			st, ok := statuses[ref]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"status":"error","message":"No transaction was found for this id"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"data": map[string]any{
					"id":                 7001,
					"tx_ref":             ref,
					"status":             st,
					"amount":             1500,
					"processor_response": "Approved by Financial Institution",
					"created_at":         "2026-02-01T09:00:00.000Z",
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	a, err := New(Config{SecretKey: testKey, SecretHash: testHash, BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func testPayment(ref string) payments.Payment {
	return payments.Payment{
		ID:                   "p-" + ref,
		Amount:               decimal.NewFromInt(1500),
		Currency:             "NGN",
		Description:          "Order",
		TransactionReference: ref,
		Gateway:              Name,
		Metadata: map[string]any{
			payments.MetaPayerEmail: "payer@example.com",
			payments.MetaPayerName:  "Ada",
		},
	}
}

func TestInitiateAndResume(t *testing.T) {
	a := newAdapter(t, fakeAPI(t, nil))
	started, err := a.Initiate(context.Background(), testPayment("FW-1"), "https://shop/cb")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if started.RedirectURL != "https://checkout.flutterwave.com/v3/hosted/pay/xyz" {
		t.Fatalf("redirect = %q", started.RedirectURL)
	}
	link, err := a.Resume(payments.Payment{Metadata: started.Metadata})
	if err != nil || link != started.RedirectURL {
		t.Fatalf("resume = %q, %v", link, err)
	}
	if _, err := a.Resume(payments.Payment{ID: "x"}); !errors.Is(err, payments.ErrMissingPendingLink) {
		t.Fatalf("err = %v", err)
	}
}

func TestConfirmFromCallback(t *testing.T) {
	a := newAdapter(t, fakeAPI(t, map[string]string{"FW-2": "successful", "FW-3": "cancelled"}))
	ctx := context.Background()

	if c, err := a.ConfirmFromCallback(ctx, url.Values{"reference": {"PS"}}); err != nil || c.Claimed {
		t.Fatalf("foreign claim = %+v, %v", c, err)
	}
	c, err := a.ConfirmFromCallback(ctx, url.Values{"tx_ref": {"FW-2"}, "status": {"successful"}})
	if err != nil || c.Outcome.Status != payments.StatusSuccess || c.TransactionReference != "FW-2" {
		t.Fatalf("claim = %+v, %v", c, err)
	}
	if !c.Outcome.Amount.Decimal.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("amount = %v", c.Outcome.Amount)
	}
	if c, _ := a.ConfirmFromCallback(ctx, url.Values{"tx_ref": {"FW-3"}}); c.Outcome.Status != payments.StatusFailure {
		t.Fatalf("cancelled = %+v", c)
	}
	c, err = a.ConfirmFromCallback(ctx, url.Values{"tx_ref": {"FW-404"}})
	if err != nil || !c.Claimed || c.Outcome.Status != payments.StatusUnsettled {
		t.Fatalf("unknown at provider = %+v, %v", c, err)
	}
}

func webhook(hash string, body map[string]any) payments.Webhook {
	raw, _ := json.Marshal(body)
	var fields map[string]any
	_ = json.Unmarshal(raw, &fields)
	h := http.Header{}
	if hash != "" {
		h.Set(HashHeader, hash)
	}
	return payments.Webhook{Header: h, Body: raw, Fields: fields}
}

func TestClaimWebhook(t *testing.T) {
	a := newAdapter(t, fakeAPI(t, map[string]string{"FW-4": "successful", "FW-5": "pending"}))
	ctx := context.Background()

	envelope := map[string]any{"event": "charge.completed", "data": map[string]any{"id": 7001, "tx_ref": "FW-4"}}
	c, err := a.ClaimWebhook(ctx, webhook(testHash, envelope))
	if err != nil || c.Kind != payments.WebhookClaimed || c.TransactionReference != "FW-4" || c.EventID != "charge.completed:7001" {
		t.Fatalf("claim = %+v, %v", c, err)
	}

	legacy := map[string]any{"txRef": "FW-4", "status": "successful"}
	if c, err := a.ClaimWebhook(ctx, webhook(testHash, legacy)); err != nil || c.Kind != payments.WebhookClaimed {
		t.Fatalf("legacy claim = %+v, %v", c, err)
	}

	if c, _ := a.ClaimWebhook(ctx, webhook("nope", envelope)); c.Kind != payments.WebhookUnknown {
		t.Fatalf("wrong hash kind = %s", c.Kind)
	}
	transfer := map[string]any{"event": "transfer.completed", "data": map[string]any{}}
	if c, _ := a.ClaimWebhook(ctx, webhook(testHash, transfer)); c.Kind != payments.WebhookNonActionable {
		t.Fatalf("transfer kind = %s", c.Kind)
	}
	pending := map[string]any{"event": "charge.completed", "data": map[string]any{"tx_ref": "FW-5"}}
	if c, _ := a.ClaimWebhook(ctx, webhook(testHash, pending)); c.Kind != payments.WebhookNonActionable {
		t.Fatalf("pending kind = %s", c.Kind)
	}
}

func TestReQuery(t *testing.T) {
	a := newAdapter(t, fakeAPI(t, map[string]string{"FW-6": "failed"}))
	q, err := a.ReQuery(context.Background(), testPayment("FW-6"))
	if err != nil || !q.Known || q.Outcome.Status != payments.StatusFailure {
		t.Fatalf("q = %+v, %v", q, err)
	}
	q, err = a.ReQuery(context.Background(), testPayment("FW-404"))
	if err != nil || q.Known {
		t.Fatalf("missing q = %+v, %v", q, err)
	}
}
