package payments

import (
	"context"
	"time"
)

// PaymentSettled is published once, by whichever caller moved a payment
// from unsettled to success.
type PaymentSettled struct {
	Payment   Payment
	Channel   Channel
	SettledAt time.Time
}

// Channel names the path that observed the success.
type Channel string

const (
	ChannelRedirect Channel = "redirect"
	ChannelWebhook  Channel = "webhook"
	ChannelReQuery  Channel = "requery"
)

// Notifier is fire-and-forget: a failing sink is logged, never retried and
// never rolls back the transition.
type Notifier interface {
	Publish(ctx context.Context, ev PaymentSettled) error
}

type NotifierFunc func(ctx context.Context, ev PaymentSettled) error

func (f NotifierFunc) Publish(ctx context.Context, ev PaymentSettled) error { return f(ctx, ev) }

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, PaymentSettled) error { return nil }
