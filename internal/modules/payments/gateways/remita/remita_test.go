package remita

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
)

var testCfg = Config{MerchantID: "2547916", ServiceTypeID: "4430731", APIKey: "1946"}

// fakeAPI answers paymentinit with a JSONP body and status.reg from a map
// of RRR to Remita status code.
func fakeAPI(t *testing.T, statuses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/merchant/api/paymentinit":
			if !strings.HasPrefix(r.Header.Get("Authorization"), "remitaConsumerKey="+testCfg.MerchantID+",remitaConsumerToken=") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`jsonp ({"statuscode":"025","RRR":"280007021192","status":"Payment Reference generated"})`))
		case strings.HasSuffix(r.URL.Path, "/status.reg"):
			parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
			rrr := parts[1]
			if rrr == "404" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if parts[2] != sha512Hex(rrr+testCfg.APIKey+testCfg.MerchantID) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			st, ok := statuses[rrr]
			if !ok {
				st = "021"
			}
			fmt.Fprintf(w, `{"status":%q,"message":"msg-%s","RRR":%q,"orderId":"ORD-%s","amount":1500,"paymentDate":"2026-02-01 10:00:00"}`, st, st, rrr, rrr)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	cfg := testCfg
	cfg.BaseURL = srv.URL
	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{MerchantID: "1"}); !errors.Is(err, payments.ErrInvalidGatewayCredentials) {
		t.Fatalf("err = %v", err)
	}
}

func TestInitiate_ReturnsSignedForm(t *testing.T) {
	srv := fakeAPI(t, nil)
	a := newAdapter(t, srv)
	p := payments.Payment{ID: "p1", Amount: decimal.NewFromInt(1500), TransactionReference: "ORD-1", Description: "Fees"}

	started, err := a.Initiate(context.Background(), p, "https://shop/cb")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if started.Form == nil || started.RedirectURL != "" {
		t.Fatalf("expected form initiation, got %+v", started)
	}
	f := started.Form
	if f.Action != srv.URL+"/finalize.reg" {
		t.Fatalf("action = %q", f.Action)
	}
	if f.Fields["rrr"] != "280007021192" || f.Fields["responseurl"] != "https://shop/cb" {
		t.Fatalf("fields = %v", f.Fields)
	}
	if f.Fields["hash"] != sha512Hex(testCfg.MerchantID+"280007021192"+testCfg.APIKey) {
		t.Fatal("form hash mismatch")
	}
	if started.ProviderReference != "280007021192" {
		t.Fatalf("provider ref = %q", started.ProviderReference)
	}
	if _, err := a.Resume(p); !errors.Is(err, payments.ErrMissingPendingLink) {
		t.Fatalf("resume err = %v", err)
	}
}

func TestConfirmFromCallback(t *testing.T) {
	a := newAdapter(t, fakeAPI(t, map[string]string{"111": "00", "222": "02"}))
	ctx := context.Background()

	if c, err := a.ConfirmFromCallback(ctx, url.Values{"reference": {"x"}}); err != nil || c.Claimed {
		t.Fatalf("foreign claim = %+v, %v", c, err)
	}

	c, err := a.ConfirmFromCallback(ctx, url.Values{"RRR": {"111"}, "orderID": {"ORD-111"}})
	if err != nil || !c.Claimed {
		t.Fatalf("claim = %+v, %v", c, err)
	}
	if c.TransactionReference != "ORD-111" || c.Outcome.Status != payments.StatusSuccess {
		t.Fatalf("claim = %+v", c)
	}
	if !c.Outcome.Amount.Valid || !c.Outcome.Amount.Decimal.Equal(decimal.NewFromInt(1500)) || c.Outcome.Date == nil {
		t.Fatalf("outcome = %+v", c.Outcome)
	}

	if c, _ := a.ConfirmFromCallback(ctx, url.Values{"rrr": {"222"}}); c.Outcome.Status != payments.StatusFailure {
		t.Fatalf("failure claim = %+v", c)
	}
	c, err = a.ConfirmFromCallback(ctx, url.Values{"RRR": {"404"}})
	if err != nil || !c.Claimed || c.Outcome.Status != payments.StatusUnsettled || c.ProviderReference != "404" {
		t.Fatalf("rrr unknown to Remita: claim = %+v, err = %v", c, err)
	}
}

func TestClaimWebhook_NeverClaims(t *testing.T) {
	a := newAdapter(t, fakeAPI(t, nil))
	c, err := a.ClaimWebhook(context.Background(), payments.Webhook{Fields: map[string]any{"rrr": "111"}})
	if err != nil || c.Kind != payments.WebhookUnknown {
		t.Fatalf("claim = %+v, %v", c, err)
	}
}

func TestReQuery(t *testing.T) {
	a := newAdapter(t, fakeAPI(t, map[string]string{"111": "01"}))
	ctx := context.Background()
	ref := func(s string) *string { return &s }

	q, err := a.ReQuery(ctx, payments.Payment{ProviderReference: ref("111")})
	if err != nil || !q.Known || q.Outcome.Status != payments.StatusSuccess {
		t.Fatalf("q = %+v, %v", q, err)
	}
	if q, err := a.ReQuery(ctx, payments.Payment{ProviderReference: ref("404")}); err != nil || q.Known {
		t.Fatalf("unknown rrr: q = %+v, %v", q, err)
	}
	if q, err := a.ReQuery(ctx, payments.Payment{ProviderReference: ref("333")}); err != nil || q.Known {
		t.Fatalf("pending q = %+v, %v", q, err)
	}
	if q, err := a.ReQuery(ctx, payments.Payment{}); err != nil || q.Known {
		t.Fatalf("no rrr q = %+v, %v", q, err)
	}
}

func TestStripJSONP(t *testing.T) {
	tests := map[string]string{
		`jsonp ({"a":1})`: `{"a":1}`,
		`{"a":1}`:         `{"a":1}`,
		` {"a":"(x)"} `:   `{"a":"(x)"}`,
	}
	for in, want := range tests {
		if got := string(stripJSONP([]byte(in))); got != want {
			t.Errorf("stripJSONP(%q) = %q, want %q", in, got, want)
		}
	}
}
