package payments

import "errors"

// Configuration.
var (
	ErrNoDefaultHandler    = errors.New("no default payment handler configured")
	ErrUnregisteredHandler = errors.New("unregistered payment handler")
	ErrDuplicateHandler    = errors.New("duplicate payment handler name")
)

// Provider communication. Recoverable: the payment stays unsettled.
var (
	ErrGatewayUnavailable        = errors.New("payment gateway unavailable")
	ErrInvalidGatewayCredentials = errors.New("payment gateway rejected credentials")
	ErrReQueryUnsupported        = errors.New("payment gateway does not support re-query")
)

// Integrity.
var (
	ErrAdapterMismatch    = errors.New("payment belongs to a different gateway")
	ErrUnknownTransaction = errors.New("unknown transaction reference")
)

// Terminal application errors.
var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrMissingPendingLink = errors.New("payment has no pending payment link")
	ErrMissingPayerDetail = errors.New("payer detail missing from metadata")
	ErrInvalidPayment     = errors.New("invalid payment")
	ErrReferenceTaken     = errors.New("transaction reference already used")
)

// IsRetryable reports whether a provider round trip may succeed if the
// caller tries again later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrInvalidGatewayCredentials)
}
