package render

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"multipay.dev/app/internal/modules/payments"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestRedirectForm(t *testing.T) {
	c, w := newContext()
	RedirectForm(c, payments.Form{
		Action: "https://login.remita.net/remita/ecomm/finalize.reg",
		Fields: map[string]string{"rrr": "280007", "hash": `a"b`},
	})

	body := w.Body.String()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, want := range []string{
		`action="https://login.remita.net/remita/ecomm/finalize.reg"`,
		`name="rrr" value="280007"`,
		`name="hash" value="a&#34;b"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s\n%s", want, body)
		}
	}
}

func TestErrorPage(t *testing.T) {
	c, w := newContext()
	ErrorPage(c, http.StatusNotFound, "Could not process transaction response.", "rid-1")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Could not process transaction response.") || !strings.Contains(body, "rid-1") {
		t.Fatalf("body = %s", body)
	}
}

func TestHTML_UnknownPage(t *testing.T) {
	c, w := newContext()
	HTML(c, http.StatusOK, "nope", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}
