package view

import (
	"github.com/shopspring/decimal"
)

// Money renders a major-unit amount with its currency symbol.
// E.g., 1500 NGN -> "₦1,500.00"
func Money(amount decimal.Decimal, currency string) string {
	return currencySymbol(currency) + groupThousands(amount.StringFixed(2))
}

func currencySymbol(code string) string {
	switch code {
	case "EUR":
		return "€"
	case "USD":
		return "$"
	case "GBP":
		return "£"
	case "NGN":
		return "₦"
	case "GHS":
		return "GH₵"
	case "KES":
		return "KSh "
	case "IDR":
		return "Rp "
	case "TRY":
		return "₺"
	default:
		return code + " "
	}
}

func groupThousands(s string) string {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	intPart, frac := s, ""
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			intPart, frac = s[:i], s[i:]
			break
		}
	}
	var out []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, intPart[i])
	}
	res := string(out) + frac
	if neg {
		res = "-" + res
	}
	return res
}
