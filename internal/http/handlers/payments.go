package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/http/middleware"
	"multipay.dev/app/internal/http/render"
	"multipay.dev/app/internal/http/validation"
	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/shared/apperr"
	"multipay.dev/app/pkg/view"
)

type PaymentHandler struct {
	Logger *slog.Logger
	Svc    *payments.Service
}

func NewPaymentHandler(logger *slog.Logger, svc *payments.Service) *PaymentHandler {
	return &PaymentHandler{Logger: logger, Svc: svc}
}

type payerInput struct {
	Name  string `json:"name" form:"payer_name" binding:"omitempty,max=128"`
	Email string `json:"email" form:"payer_email" binding:"omitempty,email"`
	Phone string `json:"phone" form:"payer_phone" binding:"omitempty,max=32"`
}

type initiateRequest struct {
	Gateway       string         `json:"gateway" form:"gateway" binding:"omitempty,max=64"`
	UserID        string         `json:"user_id" form:"user_id" binding:"omitempty,max=64"`
	Amount        string         `json:"amount" form:"amount" binding:"required"`
	Currency      string         `json:"currency" form:"currency" binding:"required,len=3,alpha"`
	Description   string         `json:"description" form:"description" binding:"required,max=255"`
	Reference     string         `json:"transaction_reference" form:"transaction_reference" binding:"omitempty,max=64"`
	CompletionURL string         `json:"completion_url" form:"completion_url" binding:"omitempty,url"`
	Payer         payerInput     `json:"payer"`
	Metadata      map[string]any `json:"metadata" form:"-"`
}

type nextAction struct {
	Type   string            `json:"type"`
	URL    string            `json:"url,omitempty"`
	Action string            `json:"action,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type paymentResponse struct {
	Payment *payments.Payment `json:"payment"`
	Next    *nextAction       `json:"next,omitempty"`
}

// POST /api/payments
func (h *PaymentHandler) Create(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Please correct the highlighted fields.", validation.FromBindError(err, &req)))
		return
	}
	res, err := h.initiate(c, req)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, paymentResponse{Payment: res.Payment, Next: next(res.Initiation)})
}

// POST /payments is the browser checkout form. The payer is sent straight
// on to the provider: a redirect, or an auto-submitted form.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("The payment form is incomplete.", validation.FromBindError(err, &req)))
		return
	}
	res, err := h.initiate(c, req)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	switch i := res.Initiation; {
	case i.Form != nil:
		render.RedirectForm(c, *i.Form)
	case i.RedirectURL != "":
		c.Redirect(http.StatusSeeOther, i.RedirectURL)
	default:
		p := *res.Payment
		render.Outcome(c, http.StatusOK, view.FromPayment(p, h.multiplier(p.Gateway)))
	}
}

func (h *PaymentHandler) initiate(c *gin.Context, req initiateRequest) (payments.InitiateResult, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return payments.InitiateResult{}, apperr.InvalidErr("Please correct the highlighted fields.", map[string]string{"amount": "Must be a number."})
	}

	meta := make(map[string]any, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.Payer.Name != "" {
		meta[payments.MetaPayerName] = req.Payer.Name
	}
	if req.Payer.Email != "" {
		meta[payments.MetaPayerEmail] = req.Payer.Email
	}
	if req.Payer.Phone != "" {
		meta[payments.MetaPayerPhone] = req.Payer.Phone
	}

	in := payments.InitiateInput{
		Gateway:              req.Gateway,
		Amount:               amount,
		Currency:             req.Currency,
		Description:          req.Description,
		TransactionReference: req.Reference,
		CompletionURL:        req.CompletionURL,
		CustomerIP:           c.ClientIP(),
		Metadata:             meta,
	}
	if req.UserID != "" {
		uid := req.UserID
		in.UserID = &uid
	}

	ctx := c.Request.Context()
	res, err := h.Svc.InitiatePayment(ctx, in)
	if err != nil {
		if res.Payment != nil {
			h.Logger.WarnContext(ctx, "payment stored but not sent to gateway",
				"payment_id", res.Payment.ID, "reference", res.Payment.TransactionReference, "err", err)
		}
		return res, toAppErr(err)
	}
	return res, nil
}

func next(i payments.Initiation) *nextAction {
	switch {
	case i.Form != nil:
		return &nextAction{Type: "form", Action: i.Form.Action, Fields: i.Form.Fields}
	case i.RedirectURL != "":
		return &nextAction{Type: "redirect", URL: i.RedirectURL}
	default:
		return nil
	}
}

// GET /api/payments/:id
func (h *PaymentHandler) Show(c *gin.Context) {
	p, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, paymentResponse{Payment: p})
}

type reQueryResponse struct {
	Payment           *payments.Payment `json:"payment"`
	Known             bool              `json:"known"`
	BecameSuccessful  bool              `json:"became_successful"`
	AlreadySuccessful bool              `json:"already_successful"`
}

// POST /api/payments/:id/requery
func (h *PaymentHandler) ReQuery(c *gin.Context) {
	res, err := h.Svc.ReQuery(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, reQueryResponse{
		Payment:           res.Payment,
		Known:             res.Known,
		BecameSuccessful:  res.BecameSuccessful,
		AlreadySuccessful: res.AlreadySuccessful,
	})
}

// GET /payments/:id/resume sends the payer back to the provider's pending link.
func (h *PaymentHandler) Resume(c *gin.Context) {
	link, err := h.Svc.ResumeUnsettledPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.Redirect(http.StatusFound, link)
}

// GET|POST /payments/confirm is the callback URL handed to every gateway.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Could not process transaction response.", nil))
		return
	}
	params := url.Values{}
	for k, v := range c.Request.Form {
		params[k] = v
	}

	res, err := h.Svc.HandleRedirectConfirmation(c.Request.Context(), params)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	if res == nil || res.Payment == nil {
		render.ErrorPage(c, http.StatusNotFound, "Could not process transaction response.", middleware.GetRequestID(c))
		return
	}

	p := *res.Payment
	render.Outcome(c, http.StatusOK, view.FromPayment(p, h.multiplier(p.Gateway)))
}

func (h *PaymentHandler) multiplier(gateway string) decimal.Decimal {
	a, err := h.Svc.Registry().ByName(gateway)
	if err != nil {
		return decimal.NewFromInt(1)
	}
	return a.Multiplier()
}

// Health reports liveness plus the configured gateways.
func Health(reg *payments.Registry) gin.HandlerFunc {
	started := time.Now()
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ok":       true,
			"gateways": reg.Names(),
			"uptime":   time.Since(started).Round(time.Second).String(),
		})
	}
}
