package notify

import (
	"context"
	"errors"
	"time"

	"multipay.dev/app/internal/modules/email"
	"multipay.dev/app/internal/modules/payments"
)

// MailReceipt emails the payer a receipt. Payments without a payer email are
// skipped silently.
type MailReceipt struct {
	sender email.Sender
	mult   MultiplierFunc
}

func NewMailReceipt(sender email.Sender, mult MultiplierFunc) *MailReceipt {
	return &MailReceipt{sender: sender, mult: mult}
}

func (m *MailReceipt) Publish(ctx context.Context, ev payments.PaymentSettled) error {
	p := ev.Payment
	to, err := p.PayerEmail()
	if errors.Is(err, payments.ErrMissingPayerDetail) {
		return nil
	}
	if err != nil {
		return sinkErr("mail", p, err)
	}
	msg, err := email.RenderReceipt(receiptFor(p, to, m.mult, ev.SettledAt))
	if err != nil {
		return sinkErr("mail", p, err)
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return sinkErr("mail", p, err)
	}
	return nil
}

func receiptFor(p payments.Payment, to string, mult MultiplierFunc, settledAt time.Time) email.Receipt {
	name, _ := p.PayerName()
	paidAt := settledAt
	if p.ProviderDate != nil {
		paidAt = *p.ProviderDate
	}
	r := email.Receipt{
		PayerName:      name,
		PayerEmail:     to,
		Reference:      p.TransactionReference,
		Gateway:        p.Gateway,
		Description:    p.Description,
		Amount:         p.Amount.StringFixed(2),
		Currency:       p.Currency,
		ProviderAmount: majorAmount(p, mult),
		PaidAt:         paidAt.UTC().Format("02 Jan 2006 15:04 MST"),
	}
	if p.ResponseCode != nil {
		r.Code = *p.ResponseCode
	}
	if p.ResponseDescription != nil {
		r.Message = *p.ResponseDescription
	}
	return r
}
