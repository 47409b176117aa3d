package payments

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// memStore is an in-memory Store whose ConditionalUpdate is a real
// compare-and-swap under one mutex.
type memStore struct {
	mu   sync.Mutex
	byID map[string]*Payment

	casCalls atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]*Payment{}}
}

func clone(p *Payment) *Payment {
	c := *p
	if p.Metadata != nil {
		c.Metadata = datatypes.JSONMap{}
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (m *memStore) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.byID {
		if e.TransactionReference == p.TransactionReference {
			return ErrReferenceTaken
		}
	}
	m.byID[p.ID] = clone(p)
	return nil
}

func (m *memStore) Find(_ context.Context, id string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return clone(p), nil
}

func (m *memStore) FindByTransactionReference(_ context.Context, ref string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.TransactionReference == ref {
			return clone(p), nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (m *memStore) FindByProviderReference(_ context.Context, gateway, ref string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if (gateway == "" || p.Gateway == gateway) && p.ProviderReference != nil && *p.ProviderReference == ref {
			return clone(p), nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (m *memStore) ConditionalUpdate(_ context.Context, id string, expected Status, o Outcome) (bool, error) {
	m.casCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || p.Status != expected {
		return false, nil
	}
	p.Status = o.Status
	p.ResponseCode = strPtr(o.Code)
	p.ResponseDescription = strPtr(o.Description)
	p.ProviderAmount = o.Amount
	p.ProviderDate = o.Date
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) AttachInitiation(_ context.Context, id, providerRef string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrPaymentNotFound
	}
	if providerRef != "" {
		if p.ProviderReference != nil && *p.ProviderReference != providerRef {
			return ErrInvalidPayment
		}
		p.ProviderReference = &providerRef
	}
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
	for k, v := range metadata {
		p.Metadata[k] = v
	}
	return nil
}

func (m *memStore) IncrementRetries(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.RetriesCount++
	return nil
}

func (m *memStore) ListUnsettled(_ context.Context, createdBefore time.Time, limit int) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.byID {
		if p.Status == StatusUnsettled && p.CreatedAt.Before(createdBefore) {
			out = append(out, *clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// put seeds a payment directly.
func (m *memStore) put(p Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = clone(&p)
}

// fakeAdapter is an Adapter driven by optional func fields.
type fakeAdapter struct {
	name       string
	multiplier decimal.Decimal

	InitiateFunc func(ctx context.Context, p Payment, callbackURL string) (Initiation, error)
	ConfirmFunc  func(ctx context.Context, params url.Values) (Claim, error)
	WebhookFunc  func(ctx context.Context, w Webhook) (WebhookClaim, error)
	ReQueryFunc  func(ctx context.Context, p Payment) (QueryResult, error)
	ResumeFunc   func(p Payment) (string, error)

	webhookCalls atomic.Int64
	confirmCalls atomic.Int64
}

func newFake(name string) *fakeAdapter {
	return &fakeAdapter{name: name, multiplier: decimal.NewFromInt(1)}
}

func (f *fakeAdapter) Name() string                { return f.name }
func (f *fakeAdapter) Multiplier() decimal.Decimal { return f.multiplier }

func (f *fakeAdapter) Initiate(ctx context.Context, p Payment, callbackURL string) (Initiation, error) {
	if f.InitiateFunc != nil {
		return f.InitiateFunc(ctx, p, callbackURL)
	}
	return Initiation{RedirectURL: "https://pay.example/" + p.TransactionReference, ProviderReference: "prov-" + p.TransactionReference}, nil
}

func (f *fakeAdapter) ConfirmFromCallback(ctx context.Context, params url.Values) (Claim, error) {
	f.confirmCalls.Add(1)
	if f.ConfirmFunc != nil {
		return f.ConfirmFunc(ctx, params)
	}
	return Unclaimed(), nil
}

func (f *fakeAdapter) ClaimWebhook(ctx context.Context, w Webhook) (WebhookClaim, error) {
	f.webhookCalls.Add(1)
	if f.WebhookFunc != nil {
		return f.WebhookFunc(ctx, w)
	}
	return UnknownWebhook(), nil
}

func (f *fakeAdapter) ReQuery(ctx context.Context, p Payment) (QueryResult, error) {
	if f.ReQueryFunc != nil {
		return f.ReQueryFunc(ctx, p)
	}
	return NotYetKnown(), nil
}

func (f *fakeAdapter) Resume(p Payment) (string, error) {
	if f.ResumeFunc != nil {
		return f.ResumeFunc(p)
	}
	return "", ErrMissingPendingLink
}

// countingNotifier records every published event.
type countingNotifier struct {
	mu     sync.Mutex
	events []PaymentSettled
	err    error
}

func (n *countingNotifier) Publish(_ context.Context, ev PaymentSettled) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// memEventLog keeps recorded webhook events.
type memEventLog struct {
	mu     sync.Mutex
	events []ProviderEvent
}

func (l *memEventLog) Record(_ context.Context, e ProviderEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *memEventLog) last() ProviderEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}
