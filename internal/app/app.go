// Package app wires configuration into a ready payments service. cmd/web and
// the operator tools share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"multipay.dev/app/internal/config"
	"multipay.dev/app/internal/database"
	"multipay.dev/app/internal/mailer"
	"multipay.dev/app/internal/modules/email"
	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/modules/payments/gateways/setup"
	"multipay.dev/app/internal/modules/payments/notify"
	"multipay.dev/app/internal/storage"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Registry *payments.Registry
	Payments *payments.Service
}

// New opens the database and builds the service with its sinks. It does
// not migrate; run cmd/tools/migrate for that.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	reg, err := setup.Registry(cfg)
	if err != nil {
		return nil, fmt.Errorf("payment gateways: %w", err)
	}

	svc := payments.NewService(reg, payments.NewRepo(db), cfg.CallbackURL())
	svc.SetLogger(logger)

	events := payments.NewGormEventLog(db)
	events.SetLogger(logger)
	svc.SetEventLog(events)

	n, err := Notifiers(ctx, cfg, logger, reg)
	if err != nil {
		return nil, err
	}
	svc.SetNotifier(n)

	return &App{Config: cfg, Logger: logger, DB: db, Registry: reg, Payments: svc}, nil
}

// Notifiers builds the success sinks enabled in cfg. The log sink is always on.
func Notifiers(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *payments.Registry) (notify.FanOut, error) {
	mult := notify.RegistryMultipliers(reg)
	sinks := notify.FanOut{notify.NewLog(logger)}

	if cfg.Mail.Enabled {
		var sender email.Sender
		switch cfg.Mail.Driver {
		case "mailtrap":
			sender = email.NewMailtrapProvider(cfg.Mail.MailtrapURL, cfg.Mail.MailtrapToken, cfg.Mail.From, cfg.Mail.FromName)
		default:
			sender = email.NewMailerAdapter(mailer.NewSMTPMailer(cfg.SMTP), cfg.Mail.From, cfg.Mail.FromName)
		}
		sinks = append(sinks, notify.NewMailReceipt(sender, mult))
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if store != nil {
		sinks = append(sinks, notify.NewArchive(store, mult))
	}
	return sinks, nil
}

func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
