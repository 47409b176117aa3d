// Package render writes the payer-facing HTML pages.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/pkg/view"
)

//go:embed templates/*.html
var files embed.FS

var pages = map[string]*template.Template{
	"outcome":       parse("outcome.html"),
	"redirect_form": parse("redirect_form.html"),
	"error":         parse("error.html"),
}

func parse(page string) *template.Template {
	return template.Must(template.ParseFS(files, "templates/layout.html", "templates/"+page))
}

// HTML renders page into a buffer first so a template error never leaves a
// half-written response.
func HTML(c *gin.Context, status int, page string, data any) {
	t, ok := pages[page]
	if !ok {
		c.String(http.StatusInternalServerError, "unknown page "+page)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func Outcome(c *gin.Context, status int, p view.Payment) {
	HTML(c, status, "outcome", p)
}

// RedirectForm auto-submits the provider's checkout form.
func RedirectForm(c *gin.Context, f payments.Form) {
	HTML(c, http.StatusOK, "redirect_form", f)
}

type errorPage struct {
	Status     int
	StatusText string
	Message    string
	RequestID  string
}

func ErrorPage(c *gin.Context, status int, msg, requestID string) {
	HTML(c, status, "error", errorPage{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    msg,
		RequestID:  requestID,
	})
}
