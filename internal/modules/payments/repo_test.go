package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Payment{}, &ProviderEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newPayment(ref string) *Payment {
	now := time.Now()
	return &Payment{
		ID:                   "id-" + ref,
		Amount:               decimal.RequireFromString("250.00"),
		Currency:             "NGN",
		Description:          "Repo test",
		TransactionReference: ref,
		Gateway:              "Paystack",
		Status:               StatusUnsettled,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestRepo_CreateAndFind(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	p := newPayment("R-1")
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, &Payment{ID: "other", TransactionReference: "R-1", Gateway: "Paystack", Status: StatusUnsettled}); !errors.Is(err, ErrReferenceTaken) {
		t.Fatalf("duplicate reference err = %v", err)
	}

	got, err := repo.FindByTransactionReference(ctx, "R-1")
	if err != nil || got.ID != p.ID {
		t.Fatalf("got %+v, err %v", got, err)
	}
	if !got.Amount.Equal(p.Amount) {
		t.Fatalf("amount = %s", got.Amount)
	}
	if _, err := repo.Find(ctx, "missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRepo_AttachInitiation(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()
	p := newPayment("R-2")
	p.Metadata = map[string]any{MetaPayerEmail: "x@y.test"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	if err := repo.AttachInitiation(ctx, p.ID, "PS-1", map[string]any{"authorization_url": "https://pay"}); err != nil {
		t.Fatalf("AttachInitiation: %v", err)
	}
	got, err := repo.FindByProviderReference(ctx, "Paystack", "PS-1")
	if err != nil {
		t.Fatalf("FindByProviderReference: %v", err)
	}
	if got.MetaString("authorization_url") != "https://pay" || got.MetaString(MetaPayerEmail) != "x@y.test" {
		t.Fatalf("metadata = %v", got.Metadata)
	}

	if err := repo.AttachInitiation(ctx, p.ID, "PS-2", nil); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("overwrite err = %v", err)
	}
	if err := repo.AttachInitiation(ctx, p.ID, "", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("metadata-only attach: %v", err)
	}
	if _, err := repo.FindByProviderReference(ctx, "Flutterwave", "PS-1"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("provider lookup must be scoped to gateway, err = %v", err)
	}
	unscoped, err := repo.FindByProviderReference(ctx, "", "PS-1")
	if err != nil || unscoped.ID != p.ID {
		t.Fatalf("unscoped lookup = %v, %v", unscoped, err)
	}
}

func TestRepo_ConditionalUpdate(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()
	p := newPayment("R-3")
	if err := repo.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	when := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o := Succeeded(decimal.NewNullDecimal(decimal.NewFromInt(25000)), &when, "00", "Approved")
	ok, err := repo.ConditionalUpdate(ctx, p.ID, StatusUnsettled, o)
	if err != nil || !ok {
		t.Fatalf("first update ok=%v err=%v", ok, err)
	}
	ok, err = repo.ConditionalUpdate(ctx, p.ID, StatusUnsettled, Failed("x", "y"))
	if err != nil || ok {
		t.Fatalf("second update ok=%v err=%v", ok, err)
	}

	got, err := repo.Find(ctx, p.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Status != StatusSuccess || got.ResponseCode == nil || *got.ResponseCode != "00" {
		t.Fatalf("payment = %+v", got)
	}
	if !got.ProviderAmount.Valid || !got.ProviderAmount.Decimal.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("provider amount = %v", got.ProviderAmount)
	}
}

func TestRepo_ConditionalUpdateRace(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()
	p := newPayment("R-4")
	if err := repo.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ConditionalUpdate(ctx, p.ID, StatusUnsettled, Succeeded(decimal.NullDecimal{}, nil, "00", ""))
			if err != nil {
				t.Errorf("ConditionalUpdate: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins = %d, want 1", wins.Load())
	}
}

func TestRepo_ListUnsettledAndRetries(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	old := newPayment("R-5")
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	recent := newPayment("R-6")
	done := newPayment("R-7")
	done.CreatedAt = old.CreatedAt
	for _, p := range []*Payment{old, recent, done} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.ConditionalUpdate(ctx, done.ID, StatusUnsettled, Failed("02", "declined")); err != nil {
		t.Fatal(err)
	}

	list, err := repo.ListUnsettled(ctx, time.Now().Add(-time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != old.ID {
		t.Fatalf("list = %+v", list)
	}

	if err := repo.IncrementRetries(ctx, old.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.IncrementRetries(ctx, old.ID); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Find(ctx, old.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.RetriesCount != 2 {
		t.Fatalf("retries = %d", got.RetriesCount)
	}
}

func TestGormEventLog_Redelivery(t *testing.T) {
	db := newTestDB(t)
	log := NewGormEventLog(db)
	ctx := context.Background()

	e := ProviderEvent{Gateway: "Paystack", EventID: "evt-1", EventType: "charge.success", Disposition: "applied", PayloadJSON: []byte(`{}`)}
	if err := log.Record(ctx, e); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := log.Record(ctx, e); err != nil {
		t.Fatalf("second record: %v", err)
	}

	var rows []ProviderEvent
	if err := db.Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Deliveries != 2 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestPayloadEventID_Stable(t *testing.T) {
	a := payloadEventID([]byte(`{"a":1}`))
	b := payloadEventID([]byte(`{"a":1}`))
	if a != b || a == payloadEventID([]byte(`{"a":2}`)) {
		t.Fatalf("ids %q %q", a, b)
	}
}

func TestRepo_TimeColumnsScanOnSQLite(t *testing.T) {
	db := newTestDB(t)
	cols, err := db.Migrator().ColumnTypes(&Payment{})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cols {
		switch c.Name() {
		case "created_at", "updated_at", "provider_date":
			if typ := strings.ToUpper(c.DatabaseTypeName()); typ != "DATETIME" {
				t.Errorf("%s declared as %q; the driver only parses DATETIME into time.Time", c.Name(), typ)
			}
		}
	}

	repo := NewRepo(db)
	ctx := context.Background()
	p := newPayment("R-TIME")
	if err := repo.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := repo.FindByTransactionReference(ctx, "R-TIME")
	if err != nil {
		t.Fatalf("FindByTransactionReference: %v", err)
	}
	if got.CreatedAt.IsZero() || got.CreatedAt.Sub(p.CreatedAt).Abs() > time.Second {
		t.Fatalf("created_at = %v, want ~%v", got.CreatedAt, p.CreatedAt)
	}
}

func TestService_WebhookOverSQLiteRepo(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	p := newPayment("R-HOOK")
	p.Gateway = "Alpha"
	if err := repo.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	a := newFake("Alpha")
	a.WebhookFunc = claimRef("R-HOOK", success())
	reg, err := NewRegistry("Alpha", a)
	if err != nil {
		t.Fatal(err)
	}
	notes := &countingNotifier{}
	svc := NewService(reg, repo, "https://shop.example/payments/confirm")
	svc.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.SetNotifier(notes)
	svc.SetEventLog(NewGormEventLog(db))

	for i := 0; i < 2; i++ {
		res, err := svc.HandleWebhook(ctx, Webhook{Body: []byte(`{"event":"charge"}`)})
		if err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
		if res.Disposition != DispositionApplied {
			t.Fatalf("delivery %d disposition = %s", i+1, res.Disposition)
		}
	}
	if notes.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notes.count())
	}

	got, err := repo.Find(ctx, p.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Status != StatusSuccess {
		t.Fatalf("status = %s", got.Status)
	}

	var ev ProviderEvent
	if err := db.First(&ev, "gateway = ? AND event_id = ?", "Alpha", "evt-R-HOOK").Error; err != nil {
		t.Fatalf("event row: %v", err)
	}
	if ev.Deliveries != 2 || ev.ReceivedAt.IsZero() {
		t.Fatalf("event = %+v", ev)
	}
}

func TestTruncate_ProcessError(t *testing.T) {
	msg := strings.Repeat("é", 200) // 400 bytes
	got := truncate(msg, 255)
	if len(got) != 254 || !utf8.ValidString(got) {
		t.Fatalf("len = %d valid = %v", len(got), utf8.ValidString(got))
	}
	if got := truncate("ok \xff\xfe done", 250); got != "ok  done" {
		t.Fatalf("invalid bytes kept: %q", got)
	}
}
