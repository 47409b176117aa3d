// Package notify holds the sinks that react to a payment becoming successful.
// Each sink is a payments.Notifier; FanOut combines them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
)

// MultiplierFunc returns the provider amount multiplier for a gateway name.
type MultiplierFunc func(gateway string) decimal.Decimal

// RegistryMultipliers resolves multipliers from the configured adapters;
// unknown gateways get 1.
func RegistryMultipliers(r *payments.Registry) MultiplierFunc {
	return func(gateway string) decimal.Decimal {
		a, err := r.ByName(gateway)
		if err != nil {
			return decimal.NewFromInt(1)
		}
		return a.Multiplier()
	}
}

// FanOut publishes to every sink, even after one fails, and joins the errors.
type FanOut []payments.Notifier

func (f FanOut) Publish(ctx context.Context, ev payments.PaymentSettled) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes one structured line per settled payment.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, ev payments.PaymentSettled) error {
	p := ev.Payment
	l.logger.InfoContext(ctx, "payment successful",
		"payment_id", p.ID,
		"reference", p.TransactionReference,
		"gateway", p.Gateway,
		"amount", p.Amount.String(),
		"currency", p.Currency,
		"channel", string(ev.Channel),
		"settled_at", ev.SettledAt,
	)
	return nil
}

func majorAmount(p payments.Payment, mult MultiplierFunc) string {
	if mult == nil {
		mult = func(string) decimal.Decimal { return decimal.NewFromInt(1) }
	}
	amt := p.ProviderAmountInMajorUnits(mult(p.Gateway))
	if !amt.Valid {
		return ""
	}
	return amt.Decimal.StringFixed(2)
}

func sinkErr(sink string, p payments.Payment, err error) error {
	return fmt.Errorf("notify %s: payment %s: %w", sink, p.TransactionReference, err)
}
