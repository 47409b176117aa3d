package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"multipay.dev/app/internal/http/middleware"
	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/shared/apperr"
)

const maxWebhookBody = 1 << 20

var errEmptyBody = errors.New("empty webhook body")

type WebhookHandler struct {
	Logger *slog.Logger
	Svc    *payments.Service
	// Ack is written only when a delivery was claimed and applied.
	Ack string
}

func NewWebhookHandler(logger *slog.Logger, svc *payments.Service, ack string) *WebhookHandler {
	return &WebhookHandler{Logger: logger, Svc: svc, Ack: ack}
}

// POST /webhooks/payments
// One endpoint for every gateway; the engine decides who owns the payload.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		middleware.Fail(c, apperr.InvalidErr("invalid body", nil))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		middleware.Fail(c, apperr.InvalidErr("invalid body", map[string]string{"_": errEmptyBody.Error()}))
		return
	}

	w := payments.Webhook{
		Header: c.Request.Header.Clone(),
		Body:   body,
		Fields: decodeFields(c.GetHeader("Content-Type"), body),
	}

	res, err := h.Svc.HandleWebhook(c.Request.Context(), w)
	if err != nil {
		// non-2xx so the provider redelivers
		middleware.Fail(c, toAppErr(err))
		return
	}

	switch res.Disposition {
	case payments.DispositionApplied:
		c.String(http.StatusOK, h.Ack)
	default:
		c.Status(http.StatusOK)
	}
}

// decodeFields reads a JSON object or a urlencoded form into a field map.
// Numbers stay json.Number so amounts keep their precision.
func decodeFields(contentType string, body []byte) map[string]any {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "application/x-www-form-urlencoded" {
		vals, err := url.ParseQuery(string(body))
		if err != nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(vals))
		for k := range vals {
			out[k] = vals.Get(k)
		}
		return out
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
