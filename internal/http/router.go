package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"multipay.dev/app/internal/http/handlers"
	"multipay.dev/app/internal/http/middleware"
	"multipay.dev/app/internal/modules/payments"
)

type RouterConfig struct {
	// CallbackPath is where gateways send payers back; it must match the
	// callback URL the service hands to adapters.
	CallbackPath string
	WebhookAck   string
	// TrustedProxies feeds gin's ClientIP; nil trusts none.
	TrustedProxies []string
}

func NewRouter(logger *slog.Logger, svc *payments.Service, cfg RouterConfig) *gin.Engine {
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/payments/confirm"
	}
	if cfg.WebhookAck == "" {
		cfg.WebhookAck = "OK"
	}

	r := gin.New()
	_ = r.SetTrustedProxies(cfg.TrustedProxies)

	r.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		// ErrorHandler wraps Recovery so a recovered panic is still rendered.
		middleware.ErrorHandler(logger),
		middleware.Recovery(logger),
	)

	ph := handlers.NewPaymentHandler(logger, svc)
	wh := handlers.NewWebhookHandler(logger, svc, cfg.WebhookAck)

	r.GET("/healthz", handlers.Health(svc.Registry()))

	api := r.Group("/api")
	{
		api.POST("/payments", ph.Create)
		api.GET("/payments/:id", ph.Show)
		api.POST("/payments/:id/requery", ph.ReQuery)
	}

	r.POST("/payments", ph.Checkout)
	r.GET("/payments/:id/resume", ph.Resume)
	r.GET(cfg.CallbackPath, ph.Confirm)
	r.POST(cfg.CallbackPath, ph.Confirm)

	r.POST("/webhooks/payments", wh.Handle)

	return r
}
