package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Service reconciles payments across every configured gateway. It holds no
// in-process locks: concurrent confirmations of the same payment are
// serialized by Store.ConditionalUpdate.
type Service struct {
	registry    *Registry
	store       Store
	notifier    Notifier
	events      EventLog
	logger      *slog.Logger
	callbackURL string
	now         func() time.Time
}

func NewService(reg *Registry, store Store, callbackURL string) *Service {
	return &Service{
		registry:    reg,
		store:       store,
		notifier:    nopNotifier{},
		logger:      slog.Default(),
		callbackURL: callbackURL,
		now:         time.Now,
	}
}

func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

func (s *Service) SetEventLog(l EventLog) {
	s.events = l
}

func (s *Service) Registry() *Registry { return s.registry }

type InitiateInput struct {
	Gateway              string // optional, default gateway when empty
	UserID               *string
	Amount               decimal.Decimal
	Currency             string
	Description          string
	TransactionReference string // optional, generated when empty
	CompletionURL        string
	CustomerIP           string
	Metadata             map[string]any
}

type InitiateResult struct {
	Payment    *Payment
	Initiation Initiation
}

// InitiatePayment stores an unsettled payment and hands it to its gateway.
// When the gateway call fails the payment is kept, unsettled, and the error
// is returned alongside it.
func (s *Service) InitiatePayment(ctx context.Context, in InitiateInput) (InitiateResult, error) {
	var (
		a   Adapter
		err error
	)
	if in.Gateway != "" {
		a, err = s.registry.ByName(in.Gateway)
	} else {
		a, err = s.registry.Default()
	}
	if err != nil {
		return InitiateResult{}, err
	}

	if !in.Amount.IsPositive() {
		return InitiateResult{}, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidPayment)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if len(currency) != 3 {
		return InitiateResult{}, fmt.Errorf("%w: currency must be an ISO-4217 code", ErrInvalidPayment)
	}
	ref := strings.TrimSpace(in.TransactionReference)
	if ref == "" {
		ref = "MP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}

	now := s.now()
	p := &Payment{
		ID:                   uuid.NewString(),
		UserID:               in.UserID,
		Amount:               in.Amount,
		Currency:             currency,
		Description:          in.Description,
		TransactionReference: ref,
		Gateway:              a.Name(),
		Status:               StatusUnsettled,
		CompletionURL:        in.CompletionURL,
		CustomerIP:           in.CustomerIP,
		Metadata:             datatypes.JSONMap(in.Metadata),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return InitiateResult{}, err
	}

	log := s.logger.With("gateway", a.Name(), "payment_id", p.ID, "reference", p.TransactionReference)

	started, err := a.Initiate(ctx, *p, s.callbackURL)
	if err != nil {
		log.WarnContext(ctx, "payment initiation failed", "err", err)
		return InitiateResult{Payment: p}, fmt.Errorf("initiate %s payment: %w", a.Name(), err)
	}

	if started.ProviderReference != "" || len(started.Metadata) > 0 {
		if err := s.store.AttachInitiation(ctx, p.ID, started.ProviderReference, started.Metadata); err != nil {
			return InitiateResult{Payment: p}, err
		}
		if p, err = s.store.Find(ctx, p.ID); err != nil {
			return InitiateResult{}, err
		}
	}

	log.InfoContext(ctx, "payment initiated", "provider_reference", started.ProviderReference)
	return InitiateResult{Payment: p, Initiation: started}, nil
}

// ApplyResult describes what applying an outcome did to a payment.
// Transitioned is true only for the caller that moved it out of unsettled.
type ApplyResult struct {
	Payment        *Payment
	Transitioned   bool
	AlreadySettled bool
}

func (r *ApplyResult) BecameSuccessful() bool {
	return r != nil && r.Transitioned && r.Payment != nil && r.Payment.IsSuccessful()
}

// HandleRedirectConfirmation offers the callback parameters to each adapter
// in registry order. A nil result with a nil error means no adapter
// recognized them and nothing was touched.
func (s *Service) HandleRedirectConfirmation(ctx context.Context, params url.Values) (*ApplyResult, error) {
	for _, a := range s.registry.All() {
		claim, err := a.ConfirmFromCallback(ctx, params)
		if err != nil {
			// The right adapter failed to verify; other adapters must not get a turn.
			s.logger.WarnContext(ctx, "redirect verification failed", "gateway", a.Name(), "err", err)
			return nil, fmt.Errorf("confirm %s payment: %w", a.Name(), err)
		}
		if !claim.Claimed {
			continue
		}
		return s.apply(ctx, a, claim.TransactionReference, claim.ProviderReference, claim.Outcome, ChannelRedirect)
	}

	s.logger.InfoContext(ctx, "redirect confirmation unclaimed", "params", params.Encode())
	return nil, nil
}

type Disposition string

const (
	DispositionApplied   Disposition = "applied"
	DispositionNoOp      Disposition = "no_op"
	DispositionUnhandled Disposition = "unhandled"
	DispositionFailed    Disposition = "failed"
)

type WebhookResult struct {
	Disposition Disposition
	Gateway     string
	Apply       *ApplyResult
}

// HandleWebhook runs the first-claim-wins dispatch over every adapter.
func (s *Service) HandleWebhook(ctx context.Context, w Webhook) (WebhookResult, error) {
	for _, a := range s.registry.All() {
		claim, err := a.ClaimWebhook(ctx, w)
		if err != nil {
			s.recordEvent(ctx, a.Name(), w, claim, DispositionFailed, err)
			s.logger.ErrorContext(ctx, "webhook claim failed", "gateway", a.Name(), "err", err)
			return WebhookResult{Disposition: DispositionFailed, Gateway: a.Name()}, fmt.Errorf("claim %s webhook: %w", a.Name(), err)
		}

		switch claim.Kind {
		case WebhookUnknown:
			continue

		case WebhookNonActionable:
			s.recordEvent(ctx, a.Name(), w, claim, DispositionNoOp, nil)
			s.logger.InfoContext(ctx, "webhook ignored", "gateway", a.Name(), "event_type", claim.EventType)
			return WebhookResult{Disposition: DispositionNoOp, Gateway: a.Name()}, nil

		case WebhookClaimed:
			res, err := s.apply(ctx, a, claim.TransactionReference, claim.ProviderReference, claim.Outcome, ChannelWebhook)
			if err != nil {
				s.recordEvent(ctx, a.Name(), w, claim, DispositionFailed, err)
				return WebhookResult{Disposition: DispositionFailed, Gateway: a.Name()}, err
			}
			s.recordEvent(ctx, a.Name(), w, claim, DispositionApplied, nil)
			return WebhookResult{Disposition: DispositionApplied, Gateway: a.Name(), Apply: res}, nil
		}
	}

	s.recordEvent(ctx, "", w, UnknownWebhook(), DispositionUnhandled, nil)
	s.logger.InfoContext(ctx, "webhook unhandled by every gateway", "gateways", strings.Join(s.registry.Names(), ","))
	return WebhookResult{Disposition: DispositionUnhandled}, nil
}

type ReQueryResult struct {
	Payment           *Payment
	Known             bool
	Outcome           Outcome
	BecameSuccessful  bool
	AlreadySuccessful bool
}

// ReQuery polls the payment's own gateway. It is operator or scheduler
// driven; reads never trigger it.
func (s *Service) ReQuery(ctx context.Context, paymentID string) (ReQueryResult, error) {
	p, err := s.store.Find(ctx, paymentID)
	if err != nil {
		return ReQueryResult{}, err
	}
	if p.IsSettled() {
		return ReQueryResult{Payment: p, AlreadySuccessful: p.IsSuccessful()}, nil
	}

	a, err := s.registry.ByName(p.Gateway)
	if err != nil {
		return ReQueryResult{Payment: p}, err
	}

	if err := s.store.IncrementRetries(ctx, p.ID); err != nil {
		return ReQueryResult{Payment: p}, err
	}

	q, err := a.ReQuery(ctx, *p)
	if err != nil {
		s.logger.WarnContext(ctx, "re-query failed", "gateway", a.Name(), "payment_id", p.ID, "err", err)
		return ReQueryResult{Payment: p}, fmt.Errorf("re-query %s payment: %w", a.Name(), err)
	}
	if !q.Known {
		s.logger.InfoContext(ctx, "re-query: not yet known", "gateway", a.Name(), "payment_id", p.ID)
		return ReQueryResult{Payment: p}, nil
	}

	res, err := s.apply(ctx, a, p.TransactionReference, "", q.Outcome, ChannelReQuery)
	if err != nil {
		return ReQueryResult{Payment: p, Known: true, Outcome: q.Outcome}, err
	}
	return ReQueryResult{
		Payment:           res.Payment,
		Known:             true,
		Outcome:           q.Outcome,
		BecameSuccessful:  res.BecameSuccessful(),
		AlreadySuccessful: res.AlreadySettled && res.Payment.IsSuccessful(),
	}, nil
}

// ResumeUnsettledPayment returns the payer-facing link generated at initiation.
func (s *Service) ResumeUnsettledPayment(ctx context.Context, paymentID string) (string, error) {
	p, err := s.store.Find(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if p.IsSettled() {
		return "", fmt.Errorf("%w: payment %s is already %s", ErrInvalidPayment, p.ID, p.Status)
	}
	a, err := s.registry.ByName(p.Gateway)
	if err != nil {
		return "", err
	}
	return a.Resume(*p)
}

func (s *Service) Get(ctx context.Context, paymentID string) (*Payment, error) {
	return s.store.Find(ctx, paymentID)
}

// ListUnsettled returns payments still unsettled after the given age.
func (s *Service) ListUnsettled(ctx context.Context, olderThan time.Duration, limit int) ([]Payment, error) {
	return s.store.ListUnsettled(ctx, s.now().Add(-olderThan), limit)
}

func (s *Service) apply(ctx context.Context, a Adapter, txRef, providerRef string, o Outcome, ch Channel) (*ApplyResult, error) {
	log := s.logger.With("gateway", a.Name(), "reference", txRef, "provider_reference", providerRef, "channel", string(ch))

	p, err := s.locate(ctx, a, txRef, providerRef)
	if err != nil {
		log.WarnContext(ctx, "outcome for unknown transaction", "err", err)
		return nil, err
	}
	log = log.With("payment_id", p.ID)

	if p.Gateway != a.Name() {
		log.WarnContext(ctx, "gateway mismatch, outcome rejected", "owner", p.Gateway)
		return nil, fmt.Errorf("%w: payment %s is owned by %s, claimed by %s", ErrAdapterMismatch, p.ID, p.Gateway, a.Name())
	}

	if p.IsSettled() {
		log.InfoContext(ctx, "payment already settled", "status", string(p.Status))
		return &ApplyResult{Payment: p, AlreadySettled: true}, nil
	}

	switch o.Status {
	case StatusSuccess, StatusFailure:
	case StatusUnsettled:
		// provider has no definitive answer yet
		log.InfoContext(ctx, "provider reports payment still pending")
		return &ApplyResult{Payment: p}, nil
	default:
		return nil, fmt.Errorf("%w: outcome status %q", ErrInvalidPayment, o.Status)
	}
	s.checkAmount(ctx, log, p, a, o)

	ok, err := s.store.ConditionalUpdate(ctx, p.ID, StatusUnsettled, o)
	if err != nil {
		return nil, err
	}
	fresh, err := s.store.Find(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// lost the race to a concurrent confirmation
		log.InfoContext(ctx, "payment settled concurrently", "status", string(fresh.Status))
		return &ApplyResult{Payment: fresh, AlreadySettled: true}, nil
	}

	log.InfoContext(ctx, "payment settled", "status", string(fresh.Status))
	if fresh.IsSuccessful() {
		s.publish(ctx, log, *fresh, ch)
	}
	return &ApplyResult{Payment: fresh, Transitioned: true}, nil
}

func (s *Service) locate(ctx context.Context, a Adapter, txRef, providerRef string) (*Payment, error) {
	var (
		p   *Payment
		err error
	)
	switch {
	case txRef != "":
		p, err = s.store.FindByTransactionReference(ctx, txRef)
	case providerRef != "":
		p, err = s.store.FindByProviderReference(ctx, a.Name(), providerRef)
		if errors.Is(err, ErrPaymentNotFound) {
			// a hit under another gateway is rejected by the ownership check
			p, err = s.store.FindByProviderReference(ctx, "", providerRef)
		}
	default:
		return nil, fmt.Errorf("%w: %s did not extract a reference", ErrUnknownTransaction, a.Name())
	}
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, firstNonEmpty(txRef, providerRef))
	}
	return p, err
}

func (s *Service) checkAmount(ctx context.Context, log *slog.Logger, p *Payment, a Adapter, o Outcome) {
	if o.Status != StatusSuccess || !o.Amount.Valid {
		return
	}
	expected := p.Amount.Mul(a.Multiplier())
	if !expected.Equal(o.Amount.Decimal) {
		log.WarnContext(ctx, "provider amount differs from payment amount",
			"expected", expected.String(), "provider_amount", o.Amount.Decimal.String())
	}
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, p Payment, ch Channel) {
	ev := PaymentSettled{Payment: p, Channel: ch, SettledAt: s.now()}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		log.ErrorContext(ctx, "payment settled notification failed", "err", err)
	}
}

func (s *Service) recordEvent(ctx context.Context, gateway string, w Webhook, claim WebhookClaim, d Disposition, procErr error) {
	if s.events == nil {
		return
	}
	now := s.now()
	eventID := claim.EventID
	if eventID == "" {
		eventID = payloadEventID(w.Body)
	}
	if gateway == "" {
		gateway = "-"
	}
	e := ProviderEvent{
		Gateway:     gateway,
		EventID:     eventID,
		EventType:   claim.EventType,
		Reference:   firstNonEmpty(claim.TransactionReference, claim.ProviderReference),
		Disposition: string(d),
		PayloadJSON: payloadJSON(w),
		ReceivedAt:  now,
	}
	if procErr != nil {
		msg := truncate(procErr.Error(), 250)
		e.ProcessError = &msg
	} else {
		e.ProcessedAt = &now
	}
	if err := s.events.Record(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "webhook event log failed", "gateway", gateway, "err", err)
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

// SweepReport summarizes one pass over stale unsettled payments.
type SweepReport struct {
	Checked          int
	BecameSuccessful int
	Settled          int
	StillPending     int
	Failed           int
}

// Sweep re-queries unsettled payments older than olderThan. A failing
// provider only counts against its own payment; the sweep carries on.
func (s *Service) Sweep(ctx context.Context, olderThan time.Duration, limit int) (SweepReport, error) {
	var rep SweepReport
	list, err := s.ListUnsettled(ctx, olderThan, limit)
	if err != nil {
		return rep, err
	}
	for _, p := range list {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Checked++
		res, err := s.ReQuery(ctx, p.ID)
		switch {
		case err != nil:
			rep.Failed++
		case res.BecameSuccessful:
			rep.BecameSuccessful++
			rep.Settled++
		case res.Payment != nil && res.Payment.IsSettled():
			rep.Settled++
		default:
			rep.StillPending++
		}
	}
	s.logger.InfoContext(ctx, "re-query sweep finished",
		"checked", rep.Checked, "settled", rep.Settled, "became_successful", rep.BecameSuccessful,
		"pending", rep.StillPending, "failed", rep.Failed)
	return rep, nil
}
