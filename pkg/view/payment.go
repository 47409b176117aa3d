// Package view turns payment records into what the payer-facing pages show.
package view

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"multipay.dev/app/internal/modules/payments"
)

type Row struct {
	Label string
	Value string
}

type Payment struct {
	ID             string
	Reference      string
	Gateway        string
	Status         string
	Successful     bool
	Pending        bool
	Amount         string
	ProviderAmount string
	Description    string
	ResponseCode   string
	// Response is the provider description; JSON objects become labelled rows.
	Response      []Row
	ResponseText  string
	Date          string
	CompletionURL string
}

// FromPayment builds the outcome page model. multiplier is the gateway's
// provider amount multiplier.
func FromPayment(p payments.Payment, multiplier decimal.Decimal) Payment {
	v := Payment{
		ID:            p.ID,
		Reference:     p.TransactionReference,
		Gateway:       p.Gateway,
		Status:        string(p.Status),
		Successful:    p.IsSuccessful(),
		Pending:       !p.IsSettled(),
		Amount:        Money(p.Amount, p.Currency),
		Description:   p.Description,
		CompletionURL: p.CompletionURL,
	}
	if pa := p.ProviderAmountInMajorUnits(multiplier); pa.Valid {
		v.ProviderAmount = Money(pa.Decimal, p.Currency)
	}
	if p.ResponseCode != nil {
		v.ResponseCode = *p.ResponseCode
	}
	if p.ResponseDescription != nil {
		v.Response, v.ResponseText = HumanizeResponse(*p.ResponseDescription)
	}
	when := p.UpdatedAt
	if p.ProviderDate != nil {
		when = *p.ProviderDate
	}
	if !when.IsZero() {
		v.Date = when.UTC().Format(time.RFC1123)
	}
	return v
}

// HumanizeResponse renders a provider response description. A JSON object
// yields sorted rows with humanized keys; anything else is returned as text.
func HumanizeResponse(desc string) ([]Row, string) {
	trimmed := strings.TrimSpace(desc)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, desc
	}
	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, desc
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, Row{Label: Humanize(k), Value: stringify(m[k])})
	}
	return rows, ""
}

// Humanize turns snake_case, kebab-case and camelCase keys into "Title case" labels.
func Humanize(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for i, r := range key {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
		case r >= 'A' && r <= 'Z' && i > 0 && len(cur) > 0 && !isUpper(cur[len(cur)-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	if len(words) == 0 {
		return key
	}
	if words[len(words)-1] == "id" {
		words[len(words)-1] = "ID"
	}
	w0 := []rune(words[0])
	if len(w0) > 0 && w0[0] >= 'a' && w0[0] <= 'z' {
		w0[0] -= 'a' - 'A'
	}
	words[0] = string(w0)
	return strings.Join(words, " ")
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
