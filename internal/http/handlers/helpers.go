package handlers

import (
	"errors"

	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/shared/apperr"
)

// toAppErr maps payment errors onto HTTP error kinds.
func toAppErr(err error) *apperr.AppError {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	switch {
	case errors.Is(err, payments.ErrPaymentNotFound):
		return &apperr.AppError{Kind: apperr.NotFound, PublicMsg: "Payment not found.", Err: err}
	case errors.Is(err, payments.ErrUnknownTransaction):
		return &apperr.AppError{Kind: apperr.NotFound, PublicMsg: "Unknown transaction.", Err: err}
	case errors.Is(err, payments.ErrUnregisteredHandler), errors.Is(err, payments.ErrNoDefaultHandler):
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Unsupported payment gateway.", Err: err}
	case errors.Is(err, payments.ErrInvalidPayment), errors.Is(err, payments.ErrMissingPayerDetail):
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: err.Error(), Err: err}
	case errors.Is(err, payments.ErrReferenceTaken):
		return &apperr.AppError{Kind: apperr.Conflict, PublicMsg: "Transaction reference already used.", Err: err}
	case errors.Is(err, payments.ErrMissingPendingLink):
		return &apperr.AppError{Kind: apperr.Conflict, PublicMsg: "This payment cannot be resumed.", Err: err}
	case errors.Is(err, payments.ErrAdapterMismatch):
		return &apperr.AppError{Kind: apperr.Conflict, PublicMsg: "Payment belongs to a different gateway.", Err: err}
	case errors.Is(err, payments.ErrReQueryUnsupported):
		return &apperr.AppError{Kind: apperr.Conflict, PublicMsg: "This gateway cannot be re-queried.", Err: err}
	case payments.IsRetryable(err):
		return apperr.UnavailableErr("The payment gateway could not be reached. Try again later.", err)
	default:
		return apperr.Wrap(err)
	}
}
