// Package setup builds the adapter registry from configuration.
package setup

import (
	"fmt"

	"multipay.dev/app/internal/config"
	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/modules/payments/gateways/flutterwave"
	"multipay.dev/app/internal/modules/payments/gateways/midtrans"
	"multipay.dev/app/internal/modules/payments/gateways/mock"
	"multipay.dev/app/internal/modules/payments/gateways/paystack"
	"multipay.dev/app/internal/modules/payments/gateways/remita"
)

// Registry instantiates every gateway in cfg.Payments.Enabled, in order.
func Registry(cfg config.Config) (*payments.Registry, error) {
	adapters := make([]payments.Adapter, 0, len(cfg.Payments.Enabled))
	for _, name := range cfg.Payments.Enabled {
		a, err := Adapter(name, cfg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return payments.NewRegistry(cfg.Payments.DefaultGateway, adapters...)
}

// Adapter builds a single named gateway.
func Adapter(name string, cfg config.Config) (payments.Adapter, error) {
	g := cfg.Gateways
	timeout := cfg.Payments.GatewayTimeout

	switch name {
	case paystack.Name:
		return paystack.New(paystack.Config{
			SecretKey: g.Paystack.SecretKey,
			BaseURL:   g.Paystack.BaseURL,
			Timeout:   timeout,
		})
	case flutterwave.Name:
		return flutterwave.New(flutterwave.Config{
			SecretKey:  g.Flutterwave.SecretKey,
			SecretHash: g.Flutterwave.SecretHash,
			BaseURL:    g.Flutterwave.BaseURL,
			Timeout:    timeout,
		})
	case remita.Name:
		return remita.New(remita.Config{
			MerchantID:    g.Remita.MerchantID,
			ServiceTypeID: g.Remita.ServiceTypeID,
			APIKey:        g.Remita.APIKey,
			BaseURL:       g.Remita.BaseURL,
			Timeout:       timeout,
		})
	case midtrans.Name:
		return midtrans.New(midtrans.Config{
			ServerKey:  g.Midtrans.ServerKey,
			Production: g.Midtrans.Production,
			Timeout:    timeout,
		})
	case mock.Name:
		return mock.New(mock.Config{
			WebhookSecret: g.Mock.WebhookSecret,
			CheckoutURL:   g.Mock.CheckoutURL,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", payments.ErrUnregisteredHandler, name)
	}
}
